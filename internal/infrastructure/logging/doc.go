// Package logging provides structured logging for OpsiMate Core.
//
// This package wraps go.uber.org/zap to provide consistent, structured
// logging across the application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Console output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log secrets, passwords, private keys or database credentials.
package logging
