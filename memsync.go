// Package memsync mirrors small named byte regions across processes over
// best-effort UDP.
//
// Example usage:
//
//	cfg := memsync.DefaultConfig()
//	cfg.InstanceID = 1
//	cfg.ListenPort = 8080
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := memsync.Run(context.Background(), cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// This package is the config-file-shaped entry point used by the CLI. For
// embedding with injected transports, clocks and loggers, use
// github.com/bft-labs/memsync/pkg/memsync.
package memsync

import (
	"context"

	"github.com/bft-labs/memsync/internal/cliconfig"
	sdk "github.com/bft-labs/memsync/pkg/memsync"
)

// Config holds the configuration for a memsync node.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// PeerConfig is one remote node entry.
type PeerConfig = cliconfig.PeerConfig

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Run starts a node from cfg and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	sc := sdk.DefaultConfig()
	sc.ListenHost = cfg.ListenHost
	sc.ListenPort = cfg.ListenPort
	sc.InstanceID = cfg.InstanceID
	sc.RegionSize = uint64(cfg.RegionSize)
	sc.PollInterval = cfg.PollInterval
	sc.InflightTimeout = cfg.InflightTimeout
	sc.ShutdownTimeout = cfg.ShutdownTimeout
	for _, p := range cfg.Peers {
		sc.Peers = append(sc.Peers, sdk.Peer{Host: p.Host, Port: p.Port, InstanceID: p.InstanceID})
	}
	return sdk.Run(ctx, sc)
}
