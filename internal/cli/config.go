package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds the resolved CLI configuration.
type Config struct {
	// NamePrefix is prepended to every segment name given on the command
	// line and is the default ls filter. It namespaces one deployment's
	// segments away from another's in the shared host namespace.
	NamePrefix string `json:"name_prefix"`

	// DefaultMode is the octal file mode create uses when --mode is not
	// given, e.g. "0600".
	DefaultMode string `json:"default_mode"`

	// Sources tracks which config files were loaded, for print-config.
	Sources ConfigSources `json:"-"`
}

// ConfigSources records the origin of the loaded configuration.
type ConfigSources struct {
	Global  string // path of the user config, empty if none was read
	Project string // path of the project or --config file, empty if none
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{DefaultMode: "0600"}
}

// ConfigFileName is the per-project config file looked up in the working
// directory.
const ConfigFileName = ".ismb.json"

// Config file errors.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config")
)

// LoadConfigInput carries the CLI-level inputs into [LoadConfig].
type LoadConfigInput struct {
	WorkDir        string            // --cwd value; empty means the process working directory
	ConfigPath     string            // --config value; replaces project file discovery
	PrefixOverride string            // --prefix value
	PrefixSet      bool              // whether --prefix was given (an empty override is meaningful)
	Env            map[string]string // process environment
}

// LoadConfig resolves the configuration with the following precedence,
// highest last:
//
//  1. built-in defaults
//  2. user config ($XDG_CONFIG_HOME/ismb/config.json, falling back to
//     ~/.config/ismb/config.json)
//  3. project config (./.ismb.json), or the --config file if one was given
//  4. --prefix
//
// Config files are HuJSON: comments and trailing commas are fine.
func LoadConfig(input LoadConfigInput) (Config, error) {
	cfg := DefaultConfig()

	if path := userConfigPath(input.Env); path != "" {
		loaded, found, err := readConfigFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if found {
			cfg = cfg.merge(loaded)
			cfg.Sources.Global = path
		}
	}

	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	path, mustExist := input.ConfigPath, true

	switch {
	case path == "":
		path, mustExist = filepath.Join(workDir, ConfigFileName), false
	case !filepath.IsAbs(path):
		path = filepath.Join(workDir, path)
	}

	loaded, found, err := readConfigFile(path, mustExist)
	if err != nil {
		return Config{}, err
	}

	if found {
		cfg = cfg.merge(loaded)
		cfg.Sources.Project = path
	}

	if input.PrefixSet {
		cfg.NamePrefix = input.PrefixOverride
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// userConfigPath returns the user-level config file path, or "" when the
// environment names no config home.
func userConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "ismb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "ismb", "config.json")
	}

	return ""
}

// fileConfig mirrors Config with pointer fields so a file can be told
// apart from one that simply omits a key: an explicit "name_prefix": ""
// clears an inherited prefix, an absent key keeps it.
type fileConfig struct {
	NamePrefix  *string `json:"name_prefix"`
	DefaultMode *string `json:"default_mode"`
}

// readConfigFile loads one config file. A missing optional file reports
// found=false without error.
func readConfigFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist {
			return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}

		return fileConfig{}, false, nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return fc, true, nil
}

// merge applies the set fields of an overlay file onto the receiver.
func (c Config) merge(overlay fileConfig) Config {
	if overlay.NamePrefix != nil {
		c.NamePrefix = *overlay.NamePrefix
	}

	if overlay.DefaultMode != nil && *overlay.DefaultMode != "" {
		c.DefaultMode = *overlay.DefaultMode
	}

	return c
}

func (c Config) validate() error {
	if strings.ContainsAny(c.NamePrefix, "/\x00") {
		return fmt.Errorf("%w: name_prefix %q cannot contain path separators", ErrConfigInvalid, c.NamePrefix)
	}

	if _, err := parseMode(c.DefaultMode); err != nil {
		return fmt.Errorf("%w: default_mode: %w", ErrConfigInvalid, err)
	}

	return nil
}

// resolveName applies the configured prefix to a user-supplied segment
// name.
func (c *Config) resolveName(name string) string {
	return c.NamePrefix + name
}

// defaultMode returns the configured create mode. Config validation
// guarantees it parses.
func (c *Config) defaultMode() os.FileMode {
	mode, _ := parseMode(c.DefaultMode)
	return mode
}
