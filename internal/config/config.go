// Package config loads ledgerbox configuration from CUE files.
//
// A configuration file is unified with the embedded schema (schema.cue),
// which constrains every field and supplies defaults:
//
//	database:          "ledgerbox.db"
//	log_level:         "info"
//	default_policy:    "owner"
//	subscriber_buffer: 64
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/ledgerbox/internal/auth"
)

//go:embed schema.cue
var schemaCUE string

// Config is the validated configuration.
type Config struct {
	Database         string `json:"database"`
	LogLevel         string `json:"log_level"`
	DefaultPolicy    string `json:"default_policy"`
	SubscriberBuffer int    `json:"subscriber_buffer"`
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := decode(nil, "")
	if err != nil {
		// The embedded schema is fixed; failing here is a build defect.
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE file at path. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return decode(src, path)
}

// Parse validates CUE source. filename is used in error positions.
func Parse(src []byte, filename string) (Config, error) {
	return decode(src, filename)
}

func decode(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def
	if src != nil {
		file := ctx.CompileBytes(src, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", filename, err)
		}
		value = def.Unify(file)
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Policy returns the default write policy.
func (c Config) Policy() auth.Policy {
	// The schema admits only valid policy names.
	p, _ := auth.ParsePolicy(c.DefaultPolicy)
	return p
}

// Level returns the configured log level.
func (c Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
