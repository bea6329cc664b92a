// Package logging wires up the process-wide zap logger for simcored: a
// console encoder that colorizes level names on a real terminal and
// falls back to plain capitals when output is redirected (e.g. to a log
// file or journal).
package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the minimum level that will be emitted.
	Level zapcore.Level `yaml:"level"`
}
