// Fritzbox is a command line client for the AVM FRITZ!Box web interface.
//
// It logs in with the challenge-response handshake, reports which WLAN
// devices are at home and switches smart plugs. Presence can be watched
// continuously, printing every arrival and departure.
//
// Usage:
//
//	fritzbox [command] [flags]
//
// See 'fritzbox --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/urls"
	"github.com/muurk/fritzbox/internal/version"
)

const programName = "fritzbox"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   programName,
	Short: "FRITZ!Box web interface client",
	Long: `A command line client for the AVM FRITZ!Box web interface.

Logs in with the router's challenge-response handshake, lists the WLAN
devices the router reports, decides whether a device is at home, and
switches FRITZ!DECT smart plugs.

The router password is taken from --password, the FRITZBOX_PASSWORD
environment variable, or an interactive prompt, in that order.

Report bugs at ` + urls.Project,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get(programName)
		if outputFormat == formatJSON {
			return printJSON(info)
		}
		fmt.Println(info)
		return nil
	},
}
