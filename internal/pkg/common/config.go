package common

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config mirrors the server flags. Zero values mean "not set in the file".
type Config struct {
	Port             int    `toml:"port"`
	DataDir          string `toml:"data-dir"`
	DerivationSecret string `toml:"derivation-secret"`
	MintEnabled      *bool  `toml:"mint-enabled"`
	LogLevel         string `toml:"log-level"`
	LogFormat        string `toml:"log-format"`
	LogFile          string `toml:"log-file"`
}

func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if len(path) == 0 {
		return &cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to decode config file: unknown key %q", undecoded[0].String())
	}

	return &cfg, nil
}
