package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/erpctl/internal/app"
)

// envPrefix is stripped from environment variables during config loading,
// e.g. ERPCTL_API__BASE_URL → api.base_url.
const envPrefix = "ERPCTL_"

// defaultConfigFile is looked up in the user config dir when no --config is given.
const defaultConfigFile = "config.toml"

// loadConfig merges configuration sources, later ones winning:
// config file → environment variables → CLI flags → defaults for anything unset.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// Empty values would shadow the config file with zero values.
			if value == "" {
				return "", nil
			}
			stripped := strings.TrimPrefix(key, envPrefix)
			return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// resolveConfigPath returns the explicit path, or the default config file
// if it exists, or "" when there is no file to load.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", nil
	}

	path := filepath.Join(dir, "erpctl", defaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("checking default config file: %w", err)
	}
	return path, nil
}

// flagValues maps set CLI flags, parent flags included, onto config keys:
// --api--base-url → api.base_url, --log-level → log_level.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	for _, name := range cmd.FlagNames() {
		// Unset flags must not override earlier sources with their defaults.
		if !cmd.IsSet(name) || name == "config" {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			values[strings.ReplaceAll(key, "-", "_")] = value
		}
	}

	return values
}
