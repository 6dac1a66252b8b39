// Package anthropic implements backend.Backend on the Anthropic Messages
// API. Each connection streams one run: assistant text is forwarded as it
// arrives, tool calls are executed locally after the pre-tool-use hooks
// run, and the finished transcript is stored under a fresh resume token.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/rs/zerolog"

	"mindrian/internal/backend"
	"mindrian/internal/tools"
	"mindrian/pkg/logger"
)

// Defaults.
const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 8192
	DefaultMaxTurns  = 25

	transcriptPrefix = "transcript:"
)

// MessagesClient is the subset of the SDK used here. *sdk.MessageService
// satisfies it.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Transcripts persists conversation transcripts. *storage.DB satisfies it.
type Transcripts interface {
	KVGet(key string) (string, error)
	KVSet(key, value string, ttl time.Duration) error
}

// Delegate describes a sub-agent reachable through the Task tool.
type Delegate struct {
	Description  string
	SystemPrompt string
	Model        string
	MaxTokens    int
}

// Config configures a Backend.
type Config struct {
	Model        string
	MaxTokens    int
	MaxTurns     int
	SystemPrompt string

	// Tools are executed locally when the model calls them.
	Tools *tools.Registry
	// Delegates are exposed through the Task tool, keyed by subagent_type.
	Delegates map[string]Delegate

	Transcripts   Transcripts
	TranscriptTTL time.Duration
}

// Backend opens Anthropic-backed connections.
type Backend struct {
	msg MessagesClient
	cfg Config
	log zerolog.Logger
}

// New creates a Backend. A nil Transcripts keeps transcripts in memory.
func New(msg MessagesClient, cfg Config) (*Backend, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	if cfg.Transcripts == nil {
		cfg.Transcripts = newMemoryTranscripts()
	}
	return &Backend{msg: msg, cfg: cfg, log: logger.Component("anthropic")}, nil
}

// NewFromAPIKey builds a Backend on the default SDK HTTP client.
func NewFromAPIKey(apiKey, baseURL string, cfg Config) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := sdk.NewClient(opts...)
	return New(&client.Messages, cfg)
}

// Connect implements backend.Backend. An unknown resume token starts a
// fresh conversation.
func (b *Backend) Connect(_ context.Context, opts backend.Options) (backend.Conn, error) {
	var history []turn
	if opts.ResumeToken != "" {
		h, err := b.loadTranscript(opts.ResumeToken)
		if err != nil {
			b.log.Warn().Err(err).Str("session_id", opts.SessionID).Msg("Resume token not usable, starting fresh conversation")
		} else {
			history = h
		}
	}
	return &conn{
		b:       b,
		opts:    opts,
		history: history,
		msgs:    make(chan backend.Message, 16),
		done:    make(chan struct{}),
	}, nil
}

func (b *Backend) loadTranscript(token string) ([]turn, error) {
	raw, err := b.cfg.Transcripts.KVGet(transcriptPrefix + token)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	var history []turn
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return history, nil
}

func (b *Backend) saveTranscript(token string, history []turn) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return b.cfg.Transcripts.KVSet(transcriptPrefix+token, string(data), b.cfg.TranscriptTTL)
}

func (b *Backend) delegateKinds() []string {
	kinds := make([]string, 0, len(b.cfg.Delegates))
	for k := range b.cfg.Delegates {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// toolParams lists the registry tools plus the Task tool when delegates exist.
func (b *Backend) toolParams() []sdk.ToolUnionParam {
	list := b.cfg.Tools.List()
	params := make([]sdk.ToolUnionParam, 0, len(list)+1)
	for _, t := range list {
		params = append(params, toolParam(t.Name(), t.Description(), t.Parameters()))
	}
	if len(b.cfg.Delegates) > 0 {
		params = append(params, toolParam(backend.DelegateTool, delegateDescription(b.cfg.Delegates, b.delegateKinds()), b.delegateSchema()))
	}
	return params
}

func toolParam(name, description string, schema map[string]any) sdk.ToolUnionParam {
	u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schema}, name)
	if u.OfTool != nil && description != "" {
		u.OfTool.Description = sdk.String(description)
	}
	return u
}

type memoryTranscripts struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryTranscripts() *memoryTranscripts {
	return &memoryTranscripts{data: make(map[string]string)}
}

func (m *memoryTranscripts) KVGet(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("transcript %q not found", key)
	}
	return v, nil
}

func (m *memoryTranscripts) KVSet(key, value string, _ time.Duration) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}
