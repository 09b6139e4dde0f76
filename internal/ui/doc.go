// Package ui provides terminal output components for the fritzbox CLI.
//
// Components are rendered once with Lipgloss and printed; nothing here is
// interactive apart from the password prompt.
//
//   - Header: command banner showing operation name and parameters
//   - Result: success, failure and warning boxes, with troubleshooting tips
//   - Tables: aligned device presence and switch listings
//   - PromptPassword: no-echo password entry via golang.org/x/term
//
// # Logging Integration
//
// Logging is controlled via FRITZBOX_LOG_LEVEL or the --log-level and
// --v1/--v2/--v3 flags. When unset, zap logging is silent so the curated UI
// output is displayed cleanly.
//
// Example:
//
//	res := ui.NewFailureResult("Login failed", err,
//	    ui.TipsFromHint(session.TroubleshootingHint(err)))
//	fmt.Println(res.Render())
package ui
