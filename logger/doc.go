// Package logger provides structured logging for streamkit using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers. Streams obtain their logger from the named
// registry and tag every entry with the stream ID and kind.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("stream")
//	log.Debug("pipe attached", logger.Fields(logger.FieldStreamID, id))
package logger
