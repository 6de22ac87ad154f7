// Package logx configures logsweep's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - JSON output for Lambda / CloudWatch ingestion
//   - An optional append-only file sink
package logx
