// Package config loads the service configuration from defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/meikuraledutech/workflow/engine"
)

// Config is the server configuration.
type Config struct {
	Listen      string `yaml:"listen" validate:"required"`
	DatabaseURL string `yaml:"database_url"`
	NATSURL     string `yaml:"nats_url" validate:"omitempty,url"`
	Log         Log    `yaml:"log"`
	Engine      Engine `yaml:"engine"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Engine holds the execution tunables.
type Engine struct {
	MinDuration     time.Duration      `yaml:"min_duration" validate:"gte=0"`
	MaxDuration     time.Duration      `yaml:"max_duration" validate:"gtefield=MinDuration"`
	DispatchStagger time.Duration      `yaml:"dispatch_stagger" validate:"gte=0"`
	NodeTimeout     time.Duration      `yaml:"node_timeout" validate:"gte=0"`
	Retry           engine.RetryPolicy `yaml:"retry"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	d := engine.DefaultOptions()
	return Config{
		Listen: ":3000",
		Log:    Log{Level: "info", Format: "text"},
		Engine: Engine{
			MinDuration:     d.MinDuration,
			MaxDuration:     d.MaxDuration,
			DispatchStagger: d.DispatchStagger,
			NodeTimeout:     d.NodeTimeout,
			Retry:           d.Retry,
		},
	}
}

var validate = validator.New()

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("LISTEN_ADDR", &c.Listen)
	set("DATABASE_URL", &c.DatabaseURL)
	set("NATS_URL", &c.NATSURL)
	set("LOG_LEVEL", &c.Log.Level)
	set("LOG_FORMAT", &c.Log.Format)
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate checks the struct tags and reports every failing field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// EngineOptions converts the engine section into coordinator options.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		MinDuration:     c.Engine.MinDuration,
		MaxDuration:     c.Engine.MaxDuration,
		DispatchStagger: c.Engine.DispatchStagger,
		NodeTimeout:     c.Engine.NodeTimeout,
		Retry:           c.Engine.Retry,
	}
}
