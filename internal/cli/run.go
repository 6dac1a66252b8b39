package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	v1 "mindrian/api/v1"
	"mindrian/internal/event"
)

const cancelTimeout = 5 * time.Second

type runOptions struct {
	server      string
	agent       string
	sessionID   string
	userID      string
	workspaceID string
	yes         bool
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <message>",
		Short: "Start a run against a server and stream it",
		Long: `Start a run against a Mindrian server and print its event stream.

When the agent wants to use a tool that needs confirmation the run pauses
and you are asked to approve or reject it. Ctrl-C cancels the run.`,
		Example: `  # One-off question in a new session
  mindrian run "summarise my workspace"

  # Continue a session, approving every tool call
  mindrian run --session 3f1c... --yes "delete the draft"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			if opts.server == "" {
				opts.server = cliCtx.ServerURL()
			}
			if opts.agent == "" {
				opts.agent = cliCtx.Config.Agent.Name
			}
			if opts.sessionID == "" {
				opts.sessionID = uuid.NewString()
				fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", opts.sessionID)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l := &runLoop{
				client: newAPIClient(opts.server, opts.agent),
				opts:   opts,
				out:    cmd.OutOrStdout(),
				in:     bufio.NewReader(cmd.InOrStdin()),
			}
			return l.execute(ctx, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "", "server URL (default from gateway config)")
	cmd.Flags().StringVar(&opts.agent, "agent", "", "agent name (default from config)")
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "session id (new session when omitted)")
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id passed to workspace tools")
	cmd.Flags().StringVar(&opts.workspaceID, "workspace", "", "workspace id passed to workspace tools")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "approve every tool call without asking")

	return cmd
}

type runLoop struct {
	client *apiClient
	opts   runOptions
	out    io.Writer
	in     *bufio.Reader
}

// execute streams one run to completion. Cancelling ctx asks the server to
// cancel the run and keeps reading until its terminal event.
func (l *runLoop) execute(ctx context.Context, message string) error {
	resp, err := l.client.startRun(context.WithoutCancel(ctx), v1.RunRequest{
		Message:     message,
		SessionID:   l.opts.sessionID,
		UserID:      l.opts.userID,
		WorkspaceID: l.opts.workspaceID,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	runID := resp.Header.Get("X-Run-ID")
	stopWatch := l.cancelOnDone(ctx, runID)
	defer stopWatch()

	r := event.NewReader(resp.Body)
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return errors.New("stream ended without a terminal event")
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}

		done, err := l.handle(ctx, runID, f)
		if done || err != nil {
			return err
		}
	}
}

func (l *runLoop) cancelOnDone(ctx context.Context, runID string) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
			defer cancel()
			if err := l.client.cancelRun(cctx, runID, l.opts.sessionID); err != nil {
				fmt.Fprintf(l.out, "\ncancel failed: %v\n", err)
			}
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

func (l *runLoop) handle(ctx context.Context, runID string, f event.Frame) (bool, error) {
	switch f.Kind {
	case event.KindTextChunk:
		var d event.TextChunkData
		if err := json.Unmarshal(f.Data, &d); err == nil {
			fmt.Fprint(l.out, d.Content)
		}
	case event.KindTextEnd:
		fmt.Fprintln(l.out)
	case event.KindToolStarted:
		var d event.ToolCall
		if err := json.Unmarshal(f.Data, &d); err == nil {
			fmt.Fprintf(l.out, "[tool] %s started\n", d.ToolName)
		}
	case event.KindToolCompleted:
		var d event.ToolCompletedData
		if err := json.Unmarshal(f.Data, &d); err == nil {
			fmt.Fprintf(l.out, "[tool] %s completed\n", d.ToolCallID)
		}
	case event.KindToolFailed:
		var d event.ToolFailedData
		if err := json.Unmarshal(f.Data, &d); err == nil {
			fmt.Fprintf(l.out, "[tool] %s failed: %s\n", d.ToolCallID, d.Error)
		}
	case event.KindRunPaused:
		var d event.RunPausedData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return false, fmt.Errorf("decode pause: %w", err)
		}
		decisions := make([]v1.ToolDecision, 0, len(d.Tools))
		for _, call := range d.Tools {
			decisions = append(decisions, v1.ToolDecision{ToolCallID: call.ToolCallID, Confirmed: l.approve(call)})
		}
		if d.RunID != "" {
			runID = d.RunID
		}
		if err := l.client.continueRun(context.WithoutCancel(ctx), runID, l.opts.sessionID, decisions); err != nil {
			return false, fmt.Errorf("submit decisions: %w", err)
		}
	case event.KindRunCompleted:
		return true, nil
	case event.KindRunCancelled:
		fmt.Fprintln(l.out, "run cancelled")
		return true, nil
	case event.KindRunError:
		var d event.RunErrorData
		_ = json.Unmarshal(f.Data, &d)
		return true, fmt.Errorf("run failed: %s", d.Content)
	}
	return false, nil
}

func (l *runLoop) approve(call event.ToolCall) bool {
	if l.opts.yes {
		fmt.Fprintf(l.out, "[confirm] %s %s approved\n", call.ToolName, call.ToolArgs)
		return true
	}
	fmt.Fprintf(l.out, "[confirm] allow %s %s? [y/N] ", call.ToolName, call.ToolArgs)
	line, _ := l.in.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
