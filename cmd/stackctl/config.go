// Config loading for the stackctl CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyDataDir = "data_dir"
	cfgKeyEngine  = "engine"
	cfgKeyCache   = "cache_path"

	defaultEngine = "expr"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# stackctl configuration

# Formula engine: expr, cel or js (js needs a build with the js_eval tag)
engine: expr

# Container data directory (optional; overridable by --data-dir)
# data_dir:

# Metadata cache location (optional; default: <data_dir>/.metadata.db)
# cache_path:
`

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagNoCache   bool
)

// Values loaded from config.yaml by PersistentPreRunE.
var (
	configDataDir string
	configEngine  string
	configCache   string
)

// loadWorkspaceConfig reads config.yaml from the resolved config
// directory, creating the directory and a default file on first run. A
// missing config.yaml is not an error.
func loadWorkspaceConfig() error {
	configDir, err := resolveConfigDir()
	if err != nil {
		return sysErr(err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return sysErr(fmt.Errorf("ensure config dir: %w", err))
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return sysErr(fmt.Errorf("ensure default config: %w", err))
	}

	v := viper.New()
	v.SetDefault(cfgKeyEngine, defaultEngine)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return sysErr(fmt.Errorf("read config: %w", err))
		}
	}

	configDataDir = v.GetString(cfgKeyDataDir)
	configEngine = v.GetString(cfgKeyEngine)
	configCache = v.GetString(cfgKeyCache)
	return nil
}

func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// resolveConfigDir follows flag > STACKCTL_CONFIG_DIR > $(CWD)/.stackctl.
func resolveConfigDir() (string, error) {
	if flagConfigDir != "" {
		return flagConfigDir, nil
	}
	if env := os.Getenv("STACKCTL_CONFIG_DIR"); env != "" {
		return env, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, ".stackctl"), nil
}

// resolveDataDir follows flag > config data_dir > STACKCTL_DATA_DIR >
// $(CWD)/stacks.
func resolveDataDir() (string, error) {
	if flagDataDir != "" {
		return flagDataDir, nil
	}
	if configDataDir != "" {
		return configDataDir, nil
	}
	if env := os.Getenv("STACKCTL_DATA_DIR"); env != "" {
		return env, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, "stacks"), nil
}

// resolveCachePath follows config cache_path > <data_dir>/.metadata.db.
// --no-cache short-circuits to empty.
func resolveCachePath(dataDir string) string {
	if flagNoCache {
		return ""
	}
	if configCache != "" {
		return configCache
	}
	return filepath.Join(dataDir, ".metadata.db")
}
