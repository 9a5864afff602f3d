// Package platform locates cardtrail's per-user files: the TOML config,
// the sqlite analysis store and the dev log directory.
//
// Layout under an app directory named "cardtrail" (or "cardtrail-dev"):
//
//	<config base>/cardtrail/config.toml
//	<data base>/cardtrail/cardtrail.db
//	<data base>/cardtrail/log/
//
// The --config and --db flags and the CARDTRAIL_CONFIG and CARDTRAIL_DB_PATH
// variables are applied by the CLI on top of these defaults.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	defaultAppName = "cardtrail"
	devSuffix      = "-dev"
	configFileName = "config.toml"
	logDirName     = "log"
)

// Paths is the resolved file layout for one cardtrail install.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options selects the app directory name.
// DevMode keeps a development store apart from the everyday one.
type Options struct {
	AppName string
	DevMode bool
}

// baseOverride names the environment variables that move the config and data bases on one OS.
type baseOverride struct {
	config string
	data   string
}

// baseOverrides lists the OSes whose conventions are honored beyond os.UserConfigDir.
var baseOverrides = map[string]baseOverride{
	"linux":   {config: "XDG_CONFIG_HOME", data: "XDG_DATA_HOME"},
	"windows": {config: "APPDATA", data: "LOCALAPPDATA"},
}

// DefaultPaths resolves the layout for the regular "cardtrail" app directory.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{})
}

// DefaultPathsWithOptions resolves the layout from the process environment.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user config dir: %w", err)
	}
	dataBase, err := userDataBase(configBase)
	if err != nil {
		return Paths{}, err
	}

	env := map[string]string{}
	for _, o := range baseOverrides {
		env[o.config] = os.Getenv(o.config)
		env[o.data] = os.Getenv(o.data)
	}
	return PathsFor(runtime.GOOS, env, configBase, dataBase, appDirName(opts))
}

// PathsFor resolves the layout for goos using env in place of the process environment.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, errors.New("config and data base dirs are required")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, errors.New("app name is required")
	}

	configBase, dataBase := userConfigDir, userDataDir
	if o, ok := baseOverrides[goos]; ok {
		if v := env[o.config]; v != "" {
			configBase = v
		}
		if v := env[o.data]; v != "" {
			dataBase = v
		}
	}

	dataDir := filepath.Join(dataBase, appName)
	return Paths{
		ConfigPath: filepath.Join(configBase, appName, configFileName),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, logDirName),
	}, nil
}

// appDirName returns the directory and database stem for opts.
func appDirName(opts Options) string {
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = defaultAppName
	}
	if opts.DevMode && !strings.HasSuffix(name, devSuffix) {
		name += devSuffix
	}
	return name
}

// userDataBase picks where the analysis store lives when no override is set.
// Linux stores data under ~/.local/share; other platforms share the config base.
func userDataBase(configBase string) (string, error) {
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve user home dir: %w", err)
		}
		return filepath.Join(home, ".local", "share"), nil
	case "windows":
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			return v, nil
		}
	}
	return configBase, nil
}
