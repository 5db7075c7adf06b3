// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/canonical/sqlexpr"
)

// AppFs is the file system configuration files are read from.
var AppFs = afero.NewOsFs()

const envPrefix = "SQLEXPR"

// Config holds the settings shared by all commands. Flags take precedence
// over SQLEXPR_* environment variables, which take precedence over the
// .sqlexpr.yaml configuration file.
type Config struct {
	Verbose bool
	Dialect string
	Driver  string
	DSN     string
	Seed    bool
	NoColor bool
}

// loadConfig reads the configuration, binding the given flags.
func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigName(".sqlexpr")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "sqlexpr"))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("verbose", false)
	v.SetDefault("dialect", "")
	v.SetDefault("driver", "sqlite3")
	v.SetDefault("dsn", ":memory:")
	v.SetDefault("seed", false)
	v.SetDefault("no-color", false)

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("cannot read configuration: %w", err)
		}
	}

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(f.Name, f)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	return &Config{
		Verbose: v.GetBool("verbose"),
		Dialect: v.GetString("dialect"),
		Driver:  v.GetString("driver"),
		DSN:     v.GetString("dsn"),
		Seed:    v.GetBool("seed"),
		NoColor: v.GetBool("no-color"),
	}, nil
}

// loadDotEnv sets the variables of the .env file that are not already set
// in the environment.
func loadDotEnv() error {
	f, err := AppFs.Open(".env")
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer f.Close()
	env, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("cannot load .env: %w", err)
	}
	for k, v := range env {
		if _, ok := os.LookupEnv(k); !ok {
			os.Setenv(k, v)
		}
	}
	return nil
}

// dialect returns the configured dialect, or the named fallback when none is
// configured.
func (c *Config) dialect(fallback string) (*sqlexpr.Dialect, error) {
	name := c.Dialect
	if name == "" {
		name = fallback
	}
	d, ok := sqlexpr.DialectByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
	return d, nil
}
