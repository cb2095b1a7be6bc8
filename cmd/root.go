package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	account    string
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "inboxreply",
		Short: "Answers Gmail messages automatically according to time-windowed rules",
		Long: `inboxreply watches your Gmail inbox and replies to unread messages
according to auto-reply rules. Each rule covers a daily time window and
optionally a set of senders; replies are either a fixed message or a short
contextual answer written by an LLM.

Rules can be managed with explicit commands or in plain language through
"inboxreply ask". The "run" command starts the polling daemon.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{printf "inboxreply version %s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default ~/.config/inboxreply/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&opts.account, "account", "", "Google account name (overrides the config file)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newAuthCmd(opts))
	rootCmd.AddCommand(newRulesCmd(opts))
	rootCmd.AddCommand(newEnableCmd(opts))
	rootCmd.AddCommand(newDisableCmd(opts))
	rootCmd.AddCommand(newSmartCmd(opts))
	rootCmd.AddCommand(newAskCmd(opts))
	rootCmd.AddCommand(newSendCmd(opts))
	rootCmd.AddCommand(newComposeCmd(opts))
	rootCmd.AddCommand(newScheduleCmd(opts))
	rootCmd.AddCommand(newContactsCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
