// Package config handles application configuration and setup
package config

import (
	"os"
	"path/filepath"

	"github.com/retroenv/retrogolib/log"
)

// DefsDirEnv is the environment variable that overrides the default
// definitions directory.
const DefsDirEnv = "RETROCFG_DEFS_DIR"

// defsDirName is the directory next to the executable that holds the default
// definitions files.
const defsDirName = "defs"

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// DefaultDefsDir returns the directory of the default <os>.txt definitions
// files. The environment variable takes precedence over the directory next
// to the executable.
func DefaultDefsDir() string {
	if dir := os.Getenv(DefsDirEnv); dir != "" {
		return dir
	}

	executable, err := os.Executable()
	if err != nil {
		return defsDirName
	}
	return filepath.Join(filepath.Dir(executable), defsDirName)
}

// DefaultDefsFile returns the path of the default definitions file of the
// operating system.
func DefaultDefsFile(dir, osName string) string {
	return filepath.Join(dir, osName+".txt")
}
