package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mindrian/internal/config"
)

const apiKeySetting = "anthropic.api_key"

// NewAuthCmd creates the auth command.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Manage the Anthropic API key used by the Mindrian server.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the Anthropic API key",
		Long: `Store the Anthropic API key in the Mindrian configuration file.

The key can also be supplied through the MINDRIAN_ANTHROPIC_API_KEY or
ANTHROPIC_API_KEY environment variables instead.`,
		Example: `  # Interactive login (input is hidden)
  mindrian auth login

  # Provide the key directly
  mindrian auth login --key sk-ant-xxxxx`,
		RunE: runAuthLogin,
	}

	cmd.Flags().StringP("key", "k", "", "API key (prompted for when omitted)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		RunE:  runAuthLogout,
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which API key is in use",
		RunE:  runAuthStatus,
	}
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}
	out := cmd.OutOrStdout()

	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		fmt.Fprint(out, "Enter your Anthropic API key: ")
		var err error
		key, err = readSecret(cmd.InOrStdin())
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if !strings.HasPrefix(key, "sk-ant-") {
		fmt.Fprintln(out, "Warning: key does not look like an Anthropic API key (sk-ant-...)")
	}

	if err := config.Set(apiKeySetting, key); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	cliCtx.Config.Anthropic.APIKey = key

	fmt.Fprintf(out, "API key saved to %s\n", cliCtx.ConfigPath)
	cliCtx.Log().Info().Msg("Anthropic API key configured")
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}
	out := cmd.OutOrStdout()

	if cliCtx.Config.Anthropic.APIKey == "" {
		fmt.Fprintln(out, "No API key configured.")
		return nil
	}
	if err := config.Set(apiKeySetting, ""); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	cliCtx.Config.Anthropic.APIKey = ""

	fmt.Fprintln(out, "API key removed.")
	cliCtx.Log().Info().Msg("Anthropic API key cleared")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}
	out := cmd.OutOrStdout()

	key, source := cliCtx.Config.Anthropic.APIKey, "config"
	if key == "" {
		key, source = os.Getenv("ANTHROPIC_API_KEY"), "ANTHROPIC_API_KEY"
	}
	if key == "" {
		fmt.Fprintln(out, "Not authenticated. Run 'mindrian auth login'.")
		return nil
	}
	fmt.Fprintf(out, "API key %s (from %s)\n", maskToken(key), source)
	return nil
}

// readSecret reads a line without echo when in is a terminal.
func readSecret(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return string(b), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return line, nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
