package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables mapped onto Config.
const EnvPrefix = "KBAGENT_"

// Provider credential variables consulted when no api_key is configured.
var credentialEnv = map[string]string{
	"googleai":  "GOOGLE_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// LoadOptions configures Load.
type LoadOptions struct {
	// EnvFile is a dotenv file loaded before the environment is read. A
	// missing file is not an error. Existing variables are never overridden.
	EnvFile string
	// Overrides are applied last, keyed by koanf path (e.g. "server.addr").
	Overrides map[string]any
}

// Load builds and validates the configuration.
func Load(_ context.Context, optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.EnvFile != "" {
		if err := loadEnvFile(opts.EnvFile); err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	mappings := EnvMappings()

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// Unknown variables map to "" and are skipped.
			return mappings[key], value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	applyCredentialFallbacks(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints plus cross-field rules.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration cannot be nil")
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

func loadEnvFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to stat env file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("env file path '%s' is not a regular file", path)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	return nil
}

func applyCredentialFallbacks(cfg *Config) {
	if cfg.Model.APIKey == "" {
		if name, ok := credentialEnv[cfg.Model.Provider]; ok {
			cfg.Model.APIKey = os.Getenv(name)
		}
	}

	if cfg.Knowledge.Embedder.APIKey == "" {
		if name, ok := credentialEnv[cfg.Knowledge.Embedder.Provider]; ok {
			cfg.Knowledge.Embedder.APIKey = os.Getenv(name)
		}
	}
}

// EnvMappings maps every supported environment variable to its koanf path,
// derived from the koanf struct tags (KBAGENT_KNOWLEDGE_VECTOR_DB_DSN ->
// knowledge.vector_db.dsn).
func EnvMappings() map[string]string {
	out := make(map[string]string)
	collectEnvMappings(reflect.TypeOf(Config{}), "", out)

	return out
}

func collectEnvMappings(t reflect.Type, prefix string, out map[string]string) {
	for i := range t.NumField() {
		field := t.Field(i)

		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}

		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() == t.PkgPath() {
			collectEnvMappings(field.Type, path, out)
			continue
		}

		out[EnvPrefix+strings.ToUpper(strings.ReplaceAll(path, ".", "_"))] = path
	}
}
