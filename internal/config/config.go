// Package config loads the gqlcoalesce configuration file.
//
// Values start from Default, are overlaid by the YAML file and finally
// checked with validator struct tags. Command line flags are applied by the
// caller before Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Remote   Remote   `yaml:"remote"`
	Coalesce Coalesce `yaml:"coalesce"`
	Cache    Cache    `yaml:"cache"`
	Log      Log      `yaml:"log"`
	OTel     OTel     `yaml:"otel"`
	Metrics  Metrics  `yaml:"metrics"`
}

type Server struct {
	Addr         string        `yaml:"addr" validate:"required,hostname_port"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" validate:"gt=0"`
	// MaxBatch limits the entries of one JSON array request. 0 disables
	// array batches.
	MaxBatch    int      `yaml:"max_batch" validate:"gte=0"`
	Pretty      bool     `yaml:"pretty"`
	CORSOrigins []string `yaml:"cors_origins" validate:"dive,required"`
}

type Remote struct {
	Endpoints  []string          `yaml:"endpoints" validate:"required,min=1,dive,url"`
	Timeout    time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers    map[string]string `yaml:"headers"`
	SchemaFile string            `yaml:"schema_file"`
}

type Coalesce struct {
	Window       time.Duration `yaml:"window" validate:"gte=0"`
	FlushTimeout time.Duration `yaml:"flush_timeout" validate:"gte=0"`
	MaxBatchSize int           `yaml:"max_batch_size" validate:"gte=0"`
}

type Cache struct {
	Documents int `yaml:"documents" validate:"gte=0"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

type OTel struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service" validate:"required"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required,startswith=/"`
}

// Default returns the configuration used when no file is given. Its remote
// endpoint list is empty and must be filled before Validate passes.
func Default() Config {
	return Config{
		Server: Server{
			Addr:         ":8080",
			Timeout:      30 * time.Second,
			MaxBodyBytes: 1 << 20,
			MaxBatch:     32,
		},
		Remote: Remote{
			Timeout: 10 * time.Second,
		},
		Coalesce: Coalesce{
			Window:       2 * time.Millisecond,
			FlushTimeout: 15 * time.Second,
		},
		Cache:   Cache{Documents: 1000},
		Log:     Log{Level: "info", Format: "console"},
		OTel:    OTel{Service: "gqlcoalesce"},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path over Default. It does not validate.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}
