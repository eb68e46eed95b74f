package vhci

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the path overrides the library needs for production
// flexibility and testability. The library's own Open path never requires
// a config file; Config is consulted only by callers that want it (the
// cmd/vhcistat tool, or a caller passing WithConfig into Open).
type Config struct {
	SysRoot  string `mapstructure:"sys-root"`
	StateDir string `mapstructure:"state-dir"`
}

// DefaultConfig mirrors the hardcoded paths spec.md §6 names.
func DefaultConfig() Config {
	return Config{SysRoot: "/sys", StateDir: DefaultStateDir}
}

// BindFlags registers the override flags on fs and binds them into v,
// following the pflag+viper pairing used throughout the retrieved
// MatthiasValvekens manifest.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("sys-root", "/sys", "root of the sysfs tree (Linux only)")
	fs.String("state-dir", DefaultStateDir, "directory holding on-disk port records (Linux only)")
	v.BindPFlags(fs)
}

// LoadConfig reads bound flags/environment into a Config, defaulting any
// unset field to DefaultConfig's value.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, wrapErrorf(ErrKindOpen, err, "loading config")
	}
	if cfg.SysRoot == "" {
		cfg.SysRoot = DefaultConfig().SysRoot
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultConfig().StateDir
	}
	return cfg, nil
}
