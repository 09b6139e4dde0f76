package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/ui"
)

var keepSession bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check that the router accepts the password",
	Long: `Run the challenge-response login against the router and report the
result. The session is logged out again unless --keep-session is set,
in which case the session ID is printed for use with other tools.`,
	Example: `  # Log in to the default router, prompting for the password
  fritzbox login

  # Log in to a specific router with the password from the environment
  FRITZBOX_PASSWORD=secret fritzbox login -i 192.168.178.1`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&keepSession, "keep-session", false, "Do not log out and print the session ID")

	rootCmd.AddCommand(loginCmd)
}

type loginResult struct {
	Router string `json:"router"`
	SID    string `json:"sid,omitempty"`
}

func runLogin(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := client.Authenticate(ctx); err != nil {
		return fail("Login failed", err)
	}

	result := loginResult{Router: routerAddr(cfg)}
	if keepSession {
		result.SID = client.SID()
	} else {
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := client.Logout(logoutCtx); err != nil {
			logging.Warn("Logout failed", zap.Error(err))
		}
	}

	if outputFormat == formatJSON {
		return printJSON(result)
	}

	details := []ui.Detail{{Key: "Router", Value: result.Router}}
	if result.SID != "" {
		details = append(details, ui.Detail{Key: "Session", Value: result.SID})
	}
	ui.PrintSuccess("Logged in", details...)
	return nil
}
