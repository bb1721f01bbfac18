// Package log provides the logging abstraction used by memsync components.
//
// It defines a Logger interface that any logging library can satisfy. A
// zerolog adapter is provided for production use and a no-op logger for
// tests:
//
//	logger := log.NewZerologAdapter()
//	logger.Info("sync started", log.String("region", name))
//
// Applications with existing logging infrastructure can implement the four
// Logger methods themselves and pass the result through memsync.WithLogger.
package log
