/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package config defines the settings of the zoo server and loads them with viper from flags,
// environment variables and an optional configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to the environment variables for settings. Dots and dashes in keys are
// replaced with underscores. For example, "loader.workers" is read from ZOO_LOADER_WORKERS.
const EnvPrefix = "ZOO"

// Keys of the settings
const (
	KeyConfig             = "config"
	KeyListen             = "listen"
	KeyGraphQLPath        = "graphql_path"
	KeyGraphiQLPath       = "graphiql_path"
	KeyGraphiQL           = "graphiql"
	KeyMetricsPath        = "metrics_path"
	KeyMaxBodySize        = "max_body_size"
	KeyOperationCacheSize = "operation_cache_size"
	KeyLoaderWorkers      = "loader.workers"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeyShutdownTimeout    = "shutdown_timeout"
	KeySeed               = "seed"
)

// Config contains settings for running the zoo server.
type Config struct {
	// Address to listen for HTTP requests
	Listen string

	// Path of the GraphQL endpoint
	GraphQLPath string

	// Path of the GraphiQL explorer; Only used when GraphiQL is true.
	GraphiQLPath string
	GraphiQL     bool

	// Path of the metrics endpoint; Empty disables the endpoint.
	MetricsPath string

	// Maximum number of bytes read from a request body
	MaxBodySize uint64

	// Number of prepared operations to be cached; 0 disables the cache.
	OperationCacheSize int

	// Number of workers loading batches for data loaders; 0 loads batches in the goroutine executing
	// the query.
	LoaderWorkers int

	LogLevel  string
	LogFormat string

	// Deadline for in-flight requests to complete on shutdown
	ShutdownTimeout time.Duration

	// Start with sample animals
	Seed bool
}

// RegisterFlags defines a flag for every setting in flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(KeyConfig, "",
		"Configuration file. Takes precedence over default values, but is overridden by values set "+
			"with environment variables and flags.")
	flags.String(KeyListen, ":8080", "Address to listen for HTTP requests.")
	flags.String(KeyGraphQLPath, "/graphql", "Path of the GraphQL endpoint.")
	flags.String(KeyGraphiQLPath, "/graphiql", "Path of the GraphiQL explorer.")
	flags.Bool(KeyGraphiQL, true, "Serve the GraphiQL explorer.")
	flags.String(KeyMetricsPath, "", "Path to expose Prometheus metrics. Metrics are not exposed if empty.")
	flags.String(KeyMaxBodySize, "10MB", "Maximum size of request body (e.g., 512KB, 10MB).")
	flags.Int(KeyOperationCacheSize, 512, "Number of prepared operations to cache. 0 disables the cache.")
	flags.Int(KeyLoaderWorkers, 0,
		"Number of workers for loading animals from the store. 0 loads them in the request goroutine.")
	flags.String(KeyLogLevel, "info", "Log level, one of [debug, info, warn, error].")
	flags.String(KeyLogFormat, "json", "Log format, one of [json, console].")
	flags.Duration(KeyShutdownTimeout, 10*time.Second, "Time to wait for in-flight requests on shutdown.")
	flags.Bool(KeySeed, false, "Start with sample animals.")
}

// NewViper creates a viper.Viper which reads settings from flags, environment variables and the
// configuration file given in flag "config" in order of precedence.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if file := v.GetString(KeyConfig); len(file) > 0 {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("artemis-zoo/config: read %s: %s", file, err)
		}
	}

	return v, nil
}

// Load reads Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	maxBodySize, err := humanize.ParseBytes(v.GetString(KeyMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("artemis-zoo/config: invalid %s: %s", KeyMaxBodySize, err)
	}

	config := &Config{
		Listen:             v.GetString(KeyListen),
		GraphQLPath:        v.GetString(KeyGraphQLPath),
		GraphiQLPath:       v.GetString(KeyGraphiQLPath),
		GraphiQL:           v.GetBool(KeyGraphiQL),
		MetricsPath:        v.GetString(KeyMetricsPath),
		MaxBodySize:        maxBodySize,
		OperationCacheSize: v.GetInt(KeyOperationCacheSize),
		LoaderWorkers:      v.GetInt(KeyLoaderWorkers),
		LogLevel:           v.GetString(KeyLogLevel),
		LogFormat:          v.GetString(KeyLogFormat),
		ShutdownTimeout:    v.GetDuration(KeyShutdownTimeout),
		Seed:               v.GetBool(KeySeed),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values in config.
func (config *Config) Validate() error {
	if len(config.Listen) == 0 {
		return fmt.Errorf("artemis-zoo/config: %s must not be empty", KeyListen)
	}

	paths := map[string]string{}
	checkPath := func(key string, path string) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf(`artemis-zoo/config: %s "%s" must start with "/"`, key, path)
		}
		if other, exists := paths[path]; exists {
			return fmt.Errorf(`artemis-zoo/config: %s "%s" is already used by %s`, key, path, other)
		}
		paths[path] = key
		return nil
	}

	if err := checkPath(KeyGraphQLPath, config.GraphQLPath); err != nil {
		return err
	}
	if config.GraphiQL {
		if err := checkPath(KeyGraphiQLPath, config.GraphiQLPath); err != nil {
			return err
		}
	}
	if len(config.MetricsPath) > 0 {
		if err := checkPath(KeyMetricsPath, config.MetricsPath); err != nil {
			return err
		}
	}

	if config.MaxBodySize == 0 {
		return fmt.Errorf("artemis-zoo/config: %s must be greater than 0", KeyMaxBodySize)
	}
	if config.OperationCacheSize < 0 {
		return fmt.Errorf("artemis-zoo/config: %s must not be negative", KeyOperationCacheSize)
	}
	if config.LoaderWorkers < 0 {
		return fmt.Errorf("artemis-zoo/config: %s must not be negative", KeyLoaderWorkers)
	}
	if config.ShutdownTimeout < 0 {
		return fmt.Errorf("artemis-zoo/config: %s must not be negative", KeyShutdownTimeout)
	}

	return nil
}
