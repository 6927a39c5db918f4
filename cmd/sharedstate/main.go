package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/sharedstate/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "sharedstate",
		Short: "Inspect and relay shared state",
		Long: `sharedstate manages the durable records behind "@" keys and relays
changes between processes.

  • Read, write and delete durable records
  • Watch changes made by other processes
  • Serve the websocket hub that carries changes between hosts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Config file (default: sharedstate.{json,toml,yaml} in the working directory)")
	pf.StringVar(&flags.dir, "dir", "", "Use file storage in this directory")
	pf.StringVar(&flags.namespace, "namespace", "", "Storage key namespace")
	pf.StringVar(&flags.origin, "origin", "", "Origin name used on the hub")

	rootCmd.AddCommand(
		hubCmd(flags),
		keysCmd(flags),
		getCmd(flags),
		setCmd(flags),
		deleteCmd(flags),
		clearCmd(flags),
		watchCmd(flags),
		versionCmd(),
	)

	return rootCmd
}

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
