package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/memsync/internal/cliconfig"
	"github.com/bft-labs/memsync/internal/node"
	"github.com/bft-labs/memsync/pkg/log"
	"github.com/bft-labs/memsync/pkg/memsync"
)

const helpDescription = `
Mirror a small in-memory record across processes over best-effort UDP.

Each node owns one region (named after its instance ID) and keeps read-only
mirrors of the regions its peers own. Byte-level edits are batched into
datagrams and reassembled on receivers that tolerate loss, duplication and
reordering.

Peers and timings come from flags, MEMSYNC_* environment variables, or a
TOML config file; flags win over environment, environment wins over file.
`

var exampleUsage = strings.TrimSpace(`
  memsync --instance-id 1 --port 8080 --peer 127.0.0.1:8081:2
  memsync --config $HOME/.memsync/config.toml --watch-config
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var (
		cfgPath   string
		peerFlags []string
	)

	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:     "memsync",
		Short:   "Mirror a small in-memory record across processes over UDP",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Config file first (default $HOME/.memsync/config.toml),
			// then env, then flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			for _, s := range peerFlags {
				p, err := cliconfig.ParsePeer(s)
				if err != nil {
					return err
				}
				cfg.Peers = append(cfg.Peers, p)
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Info().Interface("config", cfg).Msg("configuration")

			libCfg := memsync.Config{
				ListenHost:      cfg.ListenHost,
				ListenPort:      cfg.ListenPort,
				InstanceID:      cfg.InstanceID,
				RegionSize:      uint64(cfg.RegionSize),
				PollInterval:    cfg.PollInterval,
				InflightTimeout: cfg.InflightTimeout,
				ShutdownTimeout: cfg.ShutdownTimeout,
			}
			for _, p := range cfg.Peers {
				libCfg.Peers = append(libCfg.Peers, memsync.Peer{
					Host:       p.Host,
					Port:       p.Port,
					InstanceID: p.InstanceID,
				})
			}

			adapter := log.NewZerologAdapterWithLogger(logger)
			n, err := memsync.New(libCfg, memsync.WithLogger(adapter))
			if err != nil {
				return fmt.Errorf("create node: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("start node: %w", err)
			}

			n.OnUpdate(func(region string, off, length uint64) {
				logger.Info().
					Str("region", region).
					Uint64("offset", off).
					Uint64("length", length).
					Msg("mirror updated")
			})

			// Hot peer reload: re-read the config file when it changes
			// and register any new peers.
			if cfg.WatchConfig && cfgFile != "" && cliconfig.FileExists(cfgFile) {
				watcher := node.NewWatcher(cfgFile, func() {
					fc, err := cliconfig.LoadFileConfig(cfgFile)
					if err != nil {
						logger.Warn().Err(err).Msg("reload config")
						return
					}
					for _, p := range fc.Peers {
						err := n.AddPeerWithMirror(memsync.Peer{
							Host:       p.Host,
							Port:       p.Port,
							InstanceID: p.InstanceID,
						})
						if err != nil {
							logger.Warn().Err(err).Msg("add peer from config")
						}
					}
				}, adapter)
				go watcher.Run(ctx)
			}

			<-sigCh
			logger.Info().Msg("received signal, stopping...")

			if err := n.Stop(); err != nil {
				return fmt.Errorf("stop node: %w", err)
			}
			return nil
		},
	}

	// Flags
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.memsync/config.toml)")
	root.Flags().StringVar(&cfg.ListenHost, "listen", cfg.ListenHost, "local address to bind")
	root.Flags().IntVar(&cfg.ListenPort, "port", cfg.ListenPort, "local UDP port to bind")
	root.Flags().IntVar(&cfg.InstanceID, "instance-id", cfg.InstanceID, "this node's instance ID")
	root.Flags().IntVar(&cfg.RegionSize, "region-size", cfg.RegionSize, "region size in bytes")
	root.Flags().StringArrayVar(&peerFlags, "peer", nil, "remote node as host:port:instance-id (repeatable)")

	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "change detection poll interval")
	root.Flags().DurationVar(&cfg.InflightTimeout, "inflight-timeout", cfg.InflightTimeout, "multi-part reassembly timeout")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	root.Flags().BoolVar(&cfg.WatchConfig, "watch-config", cfg.WatchConfig, "reload peers when the config file changes")

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("memsync")
		os.Exit(1)
	}
}
