package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultConfirmableTools 默认需要人工确认的工作区工具
var DefaultConfirmableTools = []string{
	"mcp__mindrian__create_document",
	"mcp__mindrian__edit_document",
	"mcp__mindrian__delete_document",
}

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	// Gateway
	viper.SetDefault("gateway.port", 8080)
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.allowed_origins", []string{"*"})
	viper.SetDefault("gateway.api_version", "1.0.0")
	viper.SetDefault("gateway.rate_limit.enabled", true)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", 120)
	viper.SetDefault("gateway.rate_limit.burst", 20)
	viper.SetDefault("gateway.rate_limit.cleanup_interval", 5*time.Minute)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Storage
	viper.SetDefault("storage.driver", "sqlite")

	// Anthropic
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.base_url", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5")
	viper.SetDefault("anthropic.max_tokens", 8192)
	viper.SetDefault("anthropic.max_turns", 25)

	// Workspace
	viper.SetDefault("workspace.base_url", "http://localhost:8000")
	viper.SetDefault("workspace.timeout", "30s")

	// Confirmation
	viper.SetDefault("confirmation.timeout", "5m")
	viper.SetDefault("confirmation.max_pending", 100)
	viper.SetDefault("confirmation.tools", DefaultConfirmableTools)

	// Delegates
	viper.SetDefault("delegates.research_budget", 3)

	// Retention
	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.schedule", "@hourly")
	viper.SetDefault("retention.max_age", "720h")

	// Agent
	viper.SetDefault("agent.name", "mindrian-claude")
	viper.SetDefault("agent.queue_size", 64)
}
