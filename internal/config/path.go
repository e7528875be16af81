package config

import (
	"os"
	"path/filepath"
)

const (
	// LocalConfigFile is looked up in the working directory.
	LocalConfigFile = "firstrecord.yml"
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "firstrecord"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
	// EnvConfigPath names the config file explicitly.
	EnvConfigPath = "FIRSTRECORD_CONFIG"
)

// GlobalConfigPath returns the path to the per-user config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/firstrecord/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// ResolvePath picks the config file: the flag value, then
// $FIRSTRECORD_CONFIG, then ./firstrecord.yml, then the global file.
// required is true when the user named the file explicitly.
func ResolvePath(flag string) (path string, required bool) {
	if flag != "" {
		return flag, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	if _, err := os.Stat(LocalConfigFile); err == nil {
		return LocalConfigFile, false
	}
	return GlobalConfigPath(), false
}
