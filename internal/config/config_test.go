package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gateway.Port != 8080 {
		t.Errorf("gateway.port = %d, want 8080", cfg.Gateway.Port)
	}
	if cfg.Agent.Name != "mindrian-claude" {
		t.Errorf("agent.name = %q, want mindrian-claude", cfg.Agent.Name)
	}
	if cfg.Agent.QueueSize != 64 {
		t.Errorf("agent.queue_size = %d, want 64", cfg.Agent.QueueSize)
	}
	if got := cfg.Confirmation.GetTimeout(); got != 5*time.Minute {
		t.Errorf("confirmation timeout = %v, want 5m", got)
	}
	if len(cfg.Confirmation.Tools) != 3 {
		t.Errorf("confirmation.tools = %v, want 3 defaults", cfg.Confirmation.Tools)
	}
	if cfg.Delegates.ResearchBudget != 3 {
		t.Errorf("delegates.research_budget = %d, want 3", cfg.Delegates.ResearchBudget)
	}
	if cfg.Retention.Schedule != "@hourly" {
		t.Errorf("retention.schedule = %q, want @hourly", cfg.Retention.Schedule)
	}
	if got := cfg.Retention.GetMaxAge(); got != 720*time.Hour {
		t.Errorf("retention max age = %v, want 720h", got)
	}
	if got := cfg.Workspace.GetTimeout(); got != 30*time.Second {
		t.Errorf("workspace timeout = %v, want 30s", got)
	}
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gateway:
  port: 9000
confirmation:
  timeout: 2s
  tools:
    - mcp__mindrian__delete_document
delegates:
  agents:
    larry:
      description: thinking partner
      system_prompt: You are Larry.
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gateway.Port != 9000 {
		t.Errorf("gateway.port = %d, want 9000", cfg.Gateway.Port)
	}
	if got := cfg.Confirmation.GetTimeout(); got != 2*time.Second {
		t.Errorf("confirmation timeout = %v, want 2s", got)
	}
	if len(cfg.Confirmation.Tools) != 1 || cfg.Confirmation.Tools[0] != "mcp__mindrian__delete_document" {
		t.Errorf("confirmation.tools = %v", cfg.Confirmation.Tools)
	}
	larry, ok := cfg.Delegates.Agents["larry"]
	if !ok || larry.SystemPrompt != "You are Larry." {
		t.Errorf("delegates.agents.larry = %+v", larry)
	}
	// 未指定的值使用默认值
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("MINDRIAN_GATEWAY_PORT", "7777")
	t.Setenv("MINDRIAN_WORKSPACE_BASE_URL", "http://docs.internal")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Port != 7777 {
		t.Errorf("gateway.port = %d, want 7777", cfg.Gateway.Port)
	}
	if cfg.Workspace.BaseURL != "http://docs.internal" {
		t.Errorf("workspace.base_url = %q", cfg.Workspace.BaseURL)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Port != 8080 {
		t.Errorf("gateway.port = %d, want 8080", cfg.Gateway.Port)
	}
}

func TestLoad_ParseError(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("gateway: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configFile); err == nil {
		t.Error("expected parse error")
	}
}

func TestSet_Persists(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := Load(configFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := Set("anthropic.api_key", "sk-test"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	info, err := os.Stat(configFile)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	Reset()
	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Errorf("anthropic.api_key = %q, want sk-test", cfg.Anthropic.APIKey)
	}
}

func TestSave_NoPath(t *testing.T) {
	Reset()
	defer Reset()

	if err := Save(); err == nil {
		t.Error("expected error when config path is unset")
	}
}

func TestParseDurationFallback(t *testing.T) {
	c := ConfirmationConfig{Timeout: "not-a-duration"}
	if got := c.GetTimeout(); got != 5*time.Minute {
		t.Errorf("GetTimeout() = %v, want 5m fallback", got)
	}
	c.Timeout = "-1s"
	if got := c.GetTimeout(); got != 5*time.Minute {
		t.Errorf("GetTimeout() = %v, want 5m fallback for negative", got)
	}
}
