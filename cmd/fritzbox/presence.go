package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/fritzbox/internal/presence"
	"github.com/muurk/fritzbox/internal/ui"
)

// Presence command flags
var (
	debounceMinutes int
	pollInterval    time.Duration
)

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Report which WLAN devices are at home",
	Long: `Query the WLAN device list of the router.

A device counts as present while the router reports it, and for up to
--debounce minutes after it was last reported. The debounce hides phones
that drop off the WLAN briefly to save power.`,
}

var presenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the WLAN devices the router reports",
	Example: `  fritzbox presence list
  fritzbox presence list --format json`,
	Args: cobra.NoArgs,
	RunE: runPresenceList,
}

var presenceCheckCmd = &cobra.Command{
	Use:   "check <device>",
	Short: "Print True if the device is present, False otherwise",
	Example: `  # Is the phone at home, allowing it to be missing for 5 minutes?
  fritzbox presence check iphone --debounce 5`,
	Args: cobra.ExactArgs(1),
	RunE: runPresenceCheck,
}

var presenceWatchCmd = &cobra.Command{
	Use:   "watch [device...]",
	Short: "Poll continuously and print every arrival and departure",
	Long: `Supervise one or more devices until interrupted. The first poll only
records the state; afterwards every change is printed once.

Without arguments the devices listed under presence.devices in the config
file are watched.`,
	Example: `  fritzbox presence watch iphone android-tablet --interval 10s
  fritzbox presence watch --format json`,
	RunE: runPresenceWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{presenceListCmd, presenceCheckCmd, presenceWatchCmd} {
		cmd.Flags().IntVar(&debounceMinutes, "debounce", -1, "Minutes a device may be missing and still count as present (default from config)")
	}
	presenceWatchCmd.Flags().DurationVar(&pollInterval, "interval", -1, "Minimum time between polls (default from config)")

	presenceCmd.AddCommand(presenceListCmd, presenceCheckCmd, presenceWatchCmd)
	rootCmd.AddCommand(presenceCmd)
}

func runPresenceList(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}

	snap, err := presence.NewTracker(client).Refresh(cmd.Context())
	if err != nil {
		return fail("Presence query failed", err)
	}

	if outputFormat == formatJSON {
		return printJSON(snap)
	}

	names := snap.Names()
	if len(names) == 0 {
		fmt.Println(ui.NewWarningResult("The router reports no WLAN devices").Render())
		return nil
	}

	debounce := time.Duration(resolveDebounce(cfg.Presence.DebounceMinutes)) * time.Minute
	rows := make([]ui.PresenceRow, 0, len(names))
	for _, name := range names {
		age, _ := snap.Age(name)
		rows = append(rows, ui.PresenceRow{
			Name:     name,
			Present:  snap.IsPresent(name, debounce),
			LastSeen: snap.Devices[name].LastSeen,
			Age:      age,
		})
	}
	fmt.Println(ui.RenderPresenceTable(rows))
	return nil
}

type checkResult struct {
	Device          string `json:"device"`
	Present         bool   `json:"present"`
	DebounceMinutes int    `json:"debounce_minutes"`
}

func runPresenceCheck(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}

	debounce := resolveDebounce(cfg.Presence.DebounceMinutes)
	present, err := presence.NewTracker(client).IsPresent(cmd.Context(), args[0], debounce)
	if err != nil {
		return fail("Presence check failed", err)
	}

	if outputFormat == formatJSON {
		return printJSON(checkResult{Device: args[0], Present: present, DebounceMinutes: debounce})
	}
	fmt.Println(titleBool(present))
	return nil
}

// watchEvent is one line of "presence watch --format json"
type watchEvent struct {
	Time    time.Time `json:"time"`
	Device  string    `json:"device"`
	Present bool      `json:"present"`
}

func runPresenceWatch(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}

	devices := args
	if len(devices) == 0 {
		devices = cfg.Presence.Devices
	}
	if len(devices) == 0 {
		return errors.New("no devices to watch: pass device names or set presence.devices in the config file")
	}

	interval := cfg.Presence.PollInterval
	if pollInterval >= 0 {
		interval = pollInterval
	}
	debounce := resolveDebounce(cfg.Presence.DebounceMinutes)

	if outputFormat == formatText {
		ui.PrintCommandHeader("Presence watch", "fritzbox presence watch "+strings.Join(devices, " "),
			ui.Detail{Key: "Router", Value: routerAddr(cfg)},
			ui.Detail{Key: "Interval", Value: interval.String()},
			ui.Detail{Key: "Debounce", Value: fmt.Sprintf("%d min", debounce)},
		)
	}

	ctx := cmd.Context()
	template := presence.SupervisorConfig{
		Checker:         presence.NewTracker(client),
		Store:           presence.NewStateStore(),
		OnChange:        printTransition,
		PollInterval:    interval,
		DebounceMinutes: debounce,
	}
	supervisions, err := presence.SuperviseAll(ctx, template, devices)
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range supervisions {
		s.Wait()
		if err := s.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Device(), err))
		}
	}
	return errors.Join(errs...)
}

func printTransition(device string, from, to bool) {
	now := time.Now()
	if outputFormat == formatJSON {
		// One event per line
		_ = json.NewEncoder(os.Stdout).Encode(watchEvent{Time: now, Device: device, Present: to})
		return
	}
	fmt.Printf("%s  %-24s %s\n", now.Format("15:04:05"), device, ui.PresenceLabel(to))
}

// resolveDebounce prefers --debounce over the config value
func resolveDebounce(fromConfig int) int {
	if debounceMinutes >= 0 {
		return debounceMinutes
	}
	return fromConfig
}

// titleBool is the True/False output shell scripts test against
func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
