// Package history gives stateless delegate agents conversational continuity.
// Before a delegate call its prompt is prefixed with the prior exchanges of
// the same (session, delegate kind) track; after the call its result is
// parsed and appended to that track.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mindrian/internal/backend"
	"mindrian/internal/session"
	"mindrian/pkg/logger"
)

// DelegateTool is the backend tool that dispatches a delegate agent.
const DelegateTool = backend.DelegateTool

// Delegate kinds.
const (
	KindLarry            = "larry"
	KindTrendingToAbsurd = "trending_to_absurd"
	KindDominantDesign   = "dominant_design"
	KindUserProcess      = "user_process"
	KindMacroChanges     = "macro_changes"
)

// DefaultResearchBudget is the number of web searches a research track may use.
const DefaultResearchBudget = 3

var innovationKinds = map[string]bool{
	KindTrendingToAbsurd: true,
	KindDominantDesign:   true,
	KindUserProcess:      true,
	KindMacroChanges:     true,
}

var researchKinds = map[string]bool{
	KindTrendingToAbsurd: true,
	KindMacroChanges:     true,
}

// IsDelegate reports whether kind has a history track.
func IsDelegate(kind string) bool {
	return kind == KindLarry || innovationKinds[kind]
}

// HasResearch reports whether kind may search the web and carries a budget.
func HasResearch(kind string) bool {
	return researchKinds[kind]
}

// Tracks stores exchange history. *session.Store implements it.
type Tracks interface {
	Exchanges(sessionID, kind string) []session.Exchange
	AppendExchange(sessionID, kind string, x session.Exchange) error
}

// Injector rewrites delegate prompts and captures delegate results.
type Injector struct {
	tracks Tracks
	budget int
	log    zerolog.Logger
}

// Option configures an Injector.
type Option func(*Injector)

// WithResearchBudget overrides DefaultResearchBudget.
func WithResearchBudget(n int) Option {
	return func(i *Injector) {
		if n > 0 {
			i.budget = n
		}
	}
}

// New creates an Injector over tracks.
func New(tracks Tracks, opts ...Option) *Injector {
	i := &Injector{
		tracks: tracks,
		budget: DefaultResearchBudget,
		log:    logger.Component("history"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// BeforeDelegate returns prompt prefixed with the track's history. With no
// history, or for a non-delegate kind, prompt is returned unchanged.
func (i *Injector) BeforeDelegate(sessionID, kind, prompt string) string {
	if !IsDelegate(kind) {
		return prompt
	}
	track := i.tracks.Exchanges(sessionID, kind)
	if len(track) == 0 {
		return prompt
	}

	if kind == KindLarry {
		lines := make([]string, 0, len(track))
		for _, x := range track {
			lines = append(lines, "Larry: "+x.DelegateOutput+"\nUser: "+x.UserInput)
		}
		i.log.Info().Str("session_id", sessionID).Int("exchanges", len(track)).Msg("Injecting larry history")
		return "Previous PWS conversation:\n" + strings.Join(lines, "\n") + "\n\n" + prompt
	}

	parts := make([]string, 0, len(track))
	used := 0
	for _, x := range track {
		var b strings.Builder
		b.WriteString("Agent: " + x.DelegateOutput)
		if len(x.ResearchNotes) > 0 {
			used += len(x.ResearchNotes)
			b.WriteString("\n[Research notes from this turn:\n")
			for n, note := range x.ResearchNotes {
				if n > 0 {
					b.WriteString("\n")
				}
				b.WriteString("  - " + note)
			}
			b.WriteString("]")
		}
		b.WriteString("\nUser: " + x.UserInput)
		parts = append(parts, b.String())
	}

	budgetMsg := ""
	if HasResearch(kind) {
		budgetMsg = i.budgetMessage(i.Remaining(used))
	}

	i.log.Info().
		Str("session_id", sessionID).
		Str("delegate", kind).
		Int("exchanges", len(track)).
		Int("searches_used", used).
		Msg("Injecting delegate history")

	return "Previous conversation:\n" + strings.Join(parts, "\n\n") + budgetMsg + "\n\nUser's new message: " + prompt
}

// Remaining returns the unused research budget, never negative.
func (i *Injector) Remaining(used int) int {
	return max(0, i.budget-used)
}

func (i *Injector) budgetMessage(remaining int) string {
	if remaining == 0 {
		return fmt.Sprintf("\n\n**WEB SEARCH LIMIT REACHED**: You have used all %d web searches. "+
			"Do NOT use WebSearch or WebFetch. Continue with the information you have.", i.budget)
	}
	return fmt.Sprintf("\n\n**Web search budget**: %d of %d searches remaining. Use them wisely.", remaining, i.budget)
}

// AfterDelegate parses a delegate result and appends it to the track. It
// reports whether an exchange was recorded. Unparseable results are logged
// and dropped.
func (i *Injector) AfterDelegate(sessionID, kind, userInput string, result any) bool {
	if !IsDelegate(kind) {
		return false
	}
	reply, err := ParseReply(result)
	if err != nil {
		i.log.Warn().Err(err).Str("session_id", sessionID).Str("delegate", kind).Msg("Could not parse delegate result, history not captured")
		return false
	}
	if reply.Response == "" {
		i.log.Warn().Str("session_id", sessionID).Str("delegate", kind).Msg("Delegate result has no response, history not captured")
		return false
	}

	x := session.Exchange{DelegateOutput: reply.Response, UserInput: userInput}
	if kind != KindLarry {
		x.ResearchNotes = reply.ResearchNotes
	}
	if err := i.tracks.AppendExchange(sessionID, kind, x); err != nil {
		i.log.Warn().Err(err).Str("session_id", sessionID).Str("delegate", kind).Msg("Failed to store exchange")
		return false
	}
	i.log.Info().Str("session_id", sessionID).Str("delegate", kind).Msg("Stored delegate exchange")
	return true
}

type taskInput struct {
	SubagentType string `json:"subagent_type"`
	Prompt       string `json:"prompt"`
}

// Hook returns a pre-tool-use hook for DelegateTool that rewrites the
// prompt field of the tool input, keeping every other field.
func (i *Injector) Hook(sessionID string) backend.PreToolUseHook {
	return func(_ context.Context, call backend.ToolCall) (backend.HookResult, error) {
		allow := backend.HookResult{Decision: backend.Allow}

		var in taskInput
		if err := json.Unmarshal(call.Input, &in); err != nil {
			i.log.Warn().Err(err).Str("tool_call_id", call.ID).Msg("Unreadable delegate input, not injecting history")
			return allow, nil
		}
		rewritten := i.BeforeDelegate(sessionID, in.SubagentType, in.Prompt)
		if rewritten == in.Prompt {
			return allow, nil
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(call.Input, &fields); err != nil {
			return allow, nil
		}
		prompt, err := json.Marshal(rewritten)
		if err != nil {
			return allow, nil
		}
		fields["prompt"] = prompt
		updated, err := json.Marshal(fields)
		if err != nil {
			return allow, nil
		}
		allow.UpdatedInput = updated
		return allow, nil
	}
}
