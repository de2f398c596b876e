package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = ":8000"
	defaultLogLevel       = "info"
	defaultMaxBodyBytes   = 10 << 20
	defaultMaxTokens      = 4000
	defaultTimeout        = 120 * time.Second
	defaultMetricsPath    = "/metrics"
	defaultAuditPath      = "data/audit.db"
	defaultRetentionDays  = 30
	defaultPruneSchedule  = "0 3 * * *"
	defaultOwnedBy        = "completions-gateway"
	defaultAnthropicBase  = "https://api.anthropic.com"
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"

	AuthTypeXAPIKey = "x-api-key"
	AuthTypeBearer  = "bearer"

	BackendMessages = "messages"
	BackendCommand  = "command"
)

// reservedPaths are routed by the HTTP server and cannot host metrics.
var reservedPaths = []string{"/", "/health", "/healthz", "/v1/chat/completions", "/v1/models"}

type Config struct {
	Listen       string        `yaml:"listen"`
	LogLevel     string        `yaml:"log_level"`
	APIKey       string        `yaml:"api_key"`
	DefaultModel string        `yaml:"default_model"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	CORS         CORSConfig    `yaml:"cors"`
	Metrics      MetricsConfig `yaml:"metrics"`
	Audit        AuditConfig   `yaml:"audit"`
	ModelList    []ModelRoute  `yaml:"model_list"`
	index        map[string]int
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

type ModelRoute struct {
	ModelName string         `yaml:"model_name"`
	OwnedBy   string         `yaml:"owned_by"`
	Params    UpstreamParams `yaml:"params"`
}

type UpstreamParams struct {
	Backend    string        `yaml:"backend"`
	Model      string        `yaml:"model"`
	APIBase    string        `yaml:"api_base"`
	APIKey     string        `yaml:"api_key"`
	AuthType   string        `yaml:"auth_type"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
	Command    []string      `yaml:"command"`
	ModelFlag  string        `yaml:"model_flag"`
	SystemFlag string        `yaml:"system_flag"`
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Parse expands ${VAR} references, decodes YAML and validates the result.
func Parse(content []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(content))
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = defaultListen
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if strings.TrimSpace(c.Metrics.Path) == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if strings.TrimSpace(c.Audit.Path) == "" {
		c.Audit.Path = defaultAuditPath
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = defaultRetentionDays
	}
	if strings.TrimSpace(c.Audit.PruneSchedule) == "" {
		c.Audit.PruneSchedule = defaultPruneSchedule
	}

	for i := range c.ModelList {
		route := &c.ModelList[i]
		if strings.TrimSpace(route.OwnedBy) == "" {
			route.OwnedBy = defaultOwnedBy
		}
		p := &route.Params
		p.Backend = strings.ToLower(strings.TrimSpace(p.Backend))
		if p.Backend == "" {
			p.Backend = BackendMessages
		}
		if p.Timeout <= 0 {
			p.Timeout = defaultTimeout
		}
		if p.Backend != BackendMessages {
			continue
		}
		if strings.TrimSpace(p.AuthType) == "" {
			p.AuthType = AuthTypeXAPIKey
		}
		if strings.TrimSpace(p.APIBase) == "" {
			p.APIBase = defaultAnthropicBase
		}
		if strings.TrimSpace(p.Model) == "" {
			p.Model = defaultAnthropicModel
		}
		if p.MaxTokens <= 0 {
			p.MaxTokens = defaultMaxTokens
		}
	}
}

func (c *Config) Validate() error {
	if len(c.ModelList) == 0 {
		return fmt.Errorf("model_list is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") && c.Metrics.Path != "" {
		return fmt.Errorf("metrics.path must start with /")
	}
	if slices.Contains(reservedPaths, c.Metrics.Path) {
		return fmt.Errorf("metrics.path %s is already served by the gateway", c.Metrics.Path)
	}
	if c.Audit.Enabled && c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}

	index := make(map[string]int, len(c.ModelList))
	for i, route := range c.ModelList {
		modelName := strings.TrimSpace(route.ModelName)
		if modelName == "" {
			return fmt.Errorf("model_list[%d].model_name is required", i)
		}
		if _, exists := index[modelName]; exists {
			return fmt.Errorf("duplicate model_name: %s", modelName)
		}

		backend := strings.ToLower(strings.TrimSpace(route.Params.Backend))
		switch backend {
		case BackendMessages, "":
			if err := validateMessagesRoute(i, &c.ModelList[i].Params); err != nil {
				return err
			}
			backend = BackendMessages
		case BackendCommand:
			if len(route.Params.Command) == 0 || strings.TrimSpace(route.Params.Command[0]) == "" {
				return fmt.Errorf("model_list[%d].params.command is required for command backend", i)
			}
		default:
			return fmt.Errorf("model_list[%d].params.backend must be messages or command", i)
		}

		c.ModelList[i].ModelName = modelName
		c.ModelList[i].Params.Backend = backend
		index[modelName] = i
	}

	if dm := strings.TrimSpace(c.DefaultModel); dm != "" {
		if _, ok := index[dm]; !ok {
			return fmt.Errorf("default_model %q is not in model_list", dm)
		}
		c.DefaultModel = dm
	}

	c.index = index
	return nil
}

func validateMessagesRoute(i int, p *UpstreamParams) error {
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("model_list[%d].params.model is required", i)
	}
	if strings.TrimSpace(p.APIBase) == "" {
		return fmt.Errorf("model_list[%d].params.api_base is required", i)
	}
	u, err := url.Parse(p.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("model_list[%d].params.api_base is invalid: %s", i, p.APIBase)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("model_list[%d].params.api_base must use http/https", i)
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return fmt.Errorf("model_list[%d].params.api_key is required", i)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("model_list[%d].params.max_tokens must not be negative", i)
	}

	authType := strings.ToLower(strings.TrimSpace(p.AuthType))
	switch authType {
	case AuthTypeXAPIKey, AuthTypeBearer:
	case "":
		authType = AuthTypeXAPIKey
	default:
		return fmt.Errorf("model_list[%d].params.auth_type must be x-api-key or bearer", i)
	}
	p.AuthType = authType
	return nil
}

// RouteByModel resolves a requested model name. Unknown names fall back to
// default_model when one is configured.
func (c *Config) RouteByModel(modelName string) (ModelRoute, bool) {
	idx, ok := c.index[strings.TrimSpace(modelName)]
	if !ok {
		if c.DefaultModel == "" {
			return ModelRoute{}, false
		}
		idx, ok = c.index[c.DefaultModel]
		if !ok {
			return ModelRoute{}, false
		}
	}
	return c.ModelList[idx], true
}

func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.ModelList))
	for _, route := range c.ModelList {
		names = append(names, route.ModelName)
	}
	sort.Strings(names)
	return names
}
