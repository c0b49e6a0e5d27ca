// Package logger wraps zap for the release tooling:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext, FromContext, WithName, WithKV, WithFields),
//   - level parsing and configuration,
//   - leveled helpers in plain, formatted and key-value flavors.
//
// Services take a context and log through the logger stored in it, so a
// release name attached once at the top of a pipeline appears on every line.
package logger
