// Package logx configures holidaybot's structured logging.
//
// Logger is a small value-type wrapper over zerolog:
//   - Console output stays readable (short timestamp + file:line caller)
//   - File output is JSON, one event per line
//   - An optional Telegram sink forwards warnings to an ops chat (min-level + rate limited)
package logx
