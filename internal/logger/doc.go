// Package logger configures zap for ciphermesh binaries.
//
// Services receive a *zap.Logger directly; this package only owns
// construction, the process-global instance and context field extraction.
package logger
