package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 是应用配置的根结构体
type Config struct {
	Version      string             `mapstructure:"version" yaml:"version"`
	Gateway      GatewayConfig      `mapstructure:"gateway" yaml:"gateway"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic" yaml:"anthropic"`
	Workspace    WorkspaceConfig    `mapstructure:"workspace" yaml:"workspace"`
	Confirmation ConfirmationConfig `mapstructure:"confirmation" yaml:"confirmation"`
	Delegates    DelegatesConfig    `mapstructure:"delegates" yaml:"delegates"`
	Retention    RetentionConfig    `mapstructure:"retention" yaml:"retention"`
	Agent        AgentConfig        `mapstructure:"agent" yaml:"agent"`
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	Port           int             `mapstructure:"port" yaml:"port"`
	Host           string          `mapstructure:"host" yaml:"host"`
	AllowedOrigins []string        `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	APIVersion     string          `mapstructure:"api_version" yaml:"api_version"` // 服务端 API 版本，用于 Accept-Version 协商
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// AnthropicConfig 推理后端配置
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxTurns  int    `mapstructure:"max_turns" yaml:"max_turns"` // 单次 run 内工具循环的最大轮数
}

// WorkspaceConfig 文档/工作区 REST 后端配置
type WorkspaceConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

// GetTimeout 解析 Timeout，默认 30 秒
func (c *WorkspaceConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// ConfirmationConfig 工具确认配置
type ConfirmationConfig struct {
	Timeout    string   `mapstructure:"timeout" yaml:"timeout"`
	MaxPending int      `mapstructure:"max_pending" yaml:"max_pending"`
	Tools      []string `mapstructure:"tools" yaml:"tools"` // 需要人工确认的工具名
}

// GetTimeout 解析 Timeout，默认 5 分钟
func (c *ConfirmationConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 5*time.Minute)
}

// DelegatesConfig 子代理配置
type DelegatesConfig struct {
	ResearchBudget int                      `mapstructure:"research_budget" yaml:"research_budget"`
	Agents         map[string]DelegateAgent `mapstructure:"agents" yaml:"agents,omitempty"`
}

// DelegateAgent 单个子代理定义
type DelegateAgent struct {
	Description  string `json:"description" mapstructure:"description" yaml:"description,omitempty"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	Model        string `json:"model" mapstructure:"model" yaml:"model,omitempty"`
	MaxTokens    int    `json:"max_tokens" mapstructure:"max_tokens" yaml:"max_tokens,omitempty"` // 0 表示继承主配置
}

// RetentionConfig 数据保留配置
type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	MaxAge   string `mapstructure:"max_age" yaml:"max_age"`
}

// GetMaxAge 解析 MaxAge，默认 720 小时
func (c *RetentionConfig) GetMaxAge() time.Duration {
	return parseDuration(c.MaxAge, 720*time.Hour)
}

// AgentConfig 主代理配置
type AgentConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	QueueSize    int    `mapstructure:"queue_size" yaml:"queue_size"` // 每个会话的事件队列容量
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("MINDRIAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误，解析错误直接返回
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Reload 重新读取已加载的配置文件
func Reload() (*Config, error) {
	mu.RLock()
	path := configPath
	mu.RUnlock()
	if path == "" {
		return nil, errors.New("config path not set")
	}
	return Load(path)
}

// Path 返回当前配置文件路径
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Get 获取任意配置键值
func Get(key string) any {
	return viper.Get(key)
}

// GetString 获取字符串配置值
func GetString(key string) string {
	return viper.GetString(key)
}

// Set 设置配置值并持久化
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save 保存配置到文件
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save 内部保存函数，调用者需要持有锁
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 配置中含 API Key，使用 0600
	return os.WriteFile(configPath, data, 0600)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

// SetTestConfig 设置全局配置（仅用于测试）
func SetTestConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
