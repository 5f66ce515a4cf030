// Package config resolves statline settings from config file, environment,
// and CLI flags, recording where each effective value came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	CLILLM     string
	CLIEmbed   string
	CLIDBPath  string
	CLIBatch   string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	LLMProvider ResolvedValue `json:"llm_provider"`

	EmbedProvider      ResolvedValue `json:"embed_provider"`
	EmbedAPIKey        ResolvedValue `json:"embed_api_key"`
	EmbedEndpoint      ResolvedValue `json:"embed_endpoint"`
	EmbedModelPath     ResolvedValue `json:"embed_model_path"`
	EmbedTokenizerPath ResolvedValue `json:"embed_tokenizer_path"`

	CleanEmbedDedup ResolvedValue `json:"clean_embed_dedup"`
	GroupBatchSize  ResolvedValue `json:"group_batch_size"`
	GroupMaxRetries ResolvedValue `json:"group_max_retries"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`
	Embed struct {
		Provider      string `yaml:"provider"`
		APIKey        string `yaml:"api_key"`
		Endpoint      string `yaml:"endpoint"`
		ModelPath     string `yaml:"model_path"`
		TokenizerPath string `yaml:"tokenizer_path"`
	} `yaml:"embed"`
	Clean struct {
		EmbedDedup *bool `yaml:"embed_dedup"`
	} `yaml:"clean"`
	Group struct {
		BatchSize  int `yaml:"batch_size"`
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"group"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".statline", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLMProvider, firstNonEmpty(joinProviderModel(cfg.LLM.Provider, cfg.LLM.Model), cfg.LLM.Provider), SourceConfig, path)
		apply(&out.EmbedProvider, cfg.Embed.Provider, SourceConfig, path)
		apply(&out.EmbedEndpoint, cfg.Embed.Endpoint, SourceConfig, path)
		apply(&out.EmbedModelPath, cfg.Embed.ModelPath, SourceConfig, path)
		apply(&out.EmbedTokenizerPath, cfg.Embed.TokenizerPath, SourceConfig, path)

		if cfg.Clean.EmbedDedup != nil {
			out.CleanEmbedDedup = ResolvedValue{Value: strconv.FormatBool(*cfg.Clean.EmbedDedup), Source: SourceConfig, From: path}
		}
		if cfg.Group.BatchSize > 0 {
			out.GroupBatchSize = ResolvedValue{Value: strconv.Itoa(cfg.Group.BatchSize), Source: SourceConfig, From: path}
		}
		if cfg.Group.MaxRetries > 0 {
			out.GroupMaxRetries = ResolvedValue{Value: strconv.Itoa(cfg.Group.MaxRetries), Source: SourceConfig, From: path}
		}

		if key := strings.TrimSpace(cfg.Embed.APIKey); key != "" {
			out.EmbedAPIKey = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			provider := providerOf(cfg.LLM.Provider)
			if provider == "" {
				provider = "default"
			}
			out.LLMKeys[provider] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "STATLINE_DB")
	applyEnv(&out.DBPath, "STATLINE_DB_PATH")

	applyEnv(&out.LLMProvider, "STATLINE_LLM")

	applyEnv(&out.EmbedProvider, "STATLINE_EMBED")
	applyEnv(&out.EmbedEndpoint, "STATLINE_EMBED_ENDPOINT")
	applyEnv(&out.EmbedModelPath, "STATLINE_EMBED_MODEL_PATH")
	applyEnv(&out.EmbedTokenizerPath, "STATLINE_EMBED_TOKENIZER_PATH")
	if v := strings.TrimSpace(os.Getenv("STATLINE_EMBED_API_KEY")); v != "" {
		out.EmbedAPIKey = ResolvedValue{Value: v, Source: SourceEnv, From: "STATLINE_EMBED_API_KEY"}
	}

	applyEnv(&out.CleanEmbedDedup, "STATLINE_CLEAN_EMBED_DEDUP")
	applyEnv(&out.GroupBatchSize, "STATLINE_GROUP_BATCH")
	applyEnv(&out.GroupMaxRetries, "STATLINE_GROUP_RETRIES")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"OPENAI_API_KEY":     "openai",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.EmbedProvider, opts.CLIEmbed, SourceCLI, "--embed")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.GroupBatchSize, opts.CLIBatch, SourceCLI, "--batch")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// GroupBatch returns the resolved batch size, or fallback when unset or
// unparseable.
func (r ResolvedConfig) GroupBatch(fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(r.GroupBatchSize.Value)); err == nil && n > 0 {
		return n
	}
	return fallback
}

// GroupRetries returns the resolved oracle retry count, or fallback.
func (r ResolvedConfig) GroupRetries(fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(r.GroupMaxRetries.Value)); err == nil && n >= 0 {
		return n
	}
	return fallback
}

// EmbedDedupEnabled reports whether embedding-assisted dedup is on.
// Off by default.
func (r ResolvedConfig) EmbedDedupEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(r.CleanEmbedDedup.Value), "true")
}

func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func joinProviderModel(provider, model string) string {
	provider = strings.TrimSpace(provider)
	model = strings.TrimSpace(model)
	if provider == "" || model == "" {
		return ""
	}
	return provider + "/" + model
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
