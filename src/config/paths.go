package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDirName = "chatdesk"

// DefaultConfigPath is the user settings file, under XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appDirName, "config.json")
}

// DefaultDatabasePath is the conversation store, under XDG_STATE_HOME.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.StateHome, appDirName, "chatdesk.db")
}

// DefaultLogPath is the application log file, under XDG_STATE_HOME.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, appDirName, "chatdesk.log")
}
