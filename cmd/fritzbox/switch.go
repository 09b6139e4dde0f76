package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/fritzbox/internal/homeauto"
	"github.com/muurk/fritzbox/internal/ui"
	"github.com/muurk/fritzbox/internal/urls"
)

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Control FRITZ!DECT smart plugs",
	Long: `List and switch the outlets the router manages. Outlets are addressed
by their actor identification number (AIN) as shown by "switch list".

Interface documentation: ` + urls.AHAInterface + `
All AVM interfaces: ` + urls.DeveloperPortal,
}

var switchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outlets with name and state",
	Args:  cobra.NoArgs,
	RunE:  runSwitchList,
}

var switchStateCmd = &cobra.Command{
	Use:   "state <ain>",
	Short: "Print the state of an outlet",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitchState,
}

var switchOnCmd = &cobra.Command{
	Use:     "on <ain>",
	Short:   "Turn an outlet on",
	Example: `  fritzbox switch on 087610000001`,
	Args:    cobra.ExactArgs(1),
	RunE: runSwitchCommand(func(c *homeauto.Controller, cmd *cobra.Command, ain string) (string, error) {
		return c.SetSwitch(cmd.Context(), ain, true)
	}),
}

var switchOffCmd = &cobra.Command{
	Use:   "off <ain>",
	Short: "Turn an outlet off",
	Args:  cobra.ExactArgs(1),
	RunE: runSwitchCommand(func(c *homeauto.Controller, cmd *cobra.Command, ain string) (string, error) {
		return c.SetSwitch(cmd.Context(), ain, false)
	}),
}

var switchToggleCmd = &cobra.Command{
	Use:   "toggle <ain>",
	Short: "Toggle an outlet",
	Args:  cobra.ExactArgs(1),
	RunE: runSwitchCommand(func(c *homeauto.Controller, cmd *cobra.Command, ain string) (string, error) {
		return c.ToggleSwitch(cmd.Context(), ain)
	}),
}

func init() {
	switchCmd.AddCommand(switchListCmd, switchStateCmd, switchOnCmd, switchOffCmd, switchToggleCmd)
	rootCmd.AddCommand(switchCmd)
}

// switchStatus is the JSON form of one outlet
type switchStatus struct {
	AIN   string `json:"ain"`
	Name  string `json:"name,omitempty"`
	State string `json:"state"`
}

func newController(cmd *cobra.Command) (*homeauto.Controller, error) {
	client, _, err := newClient(cmd)
	if err != nil {
		return nil, err
	}
	return homeauto.New(client), nil
}

func runSwitchList(cmd *cobra.Command, args []string) error {
	c, err := newController(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ains, err := c.ListSwitches(ctx)
	if err != nil {
		return fail("Switch list failed", err)
	}

	outlets := make([]switchStatus, 0, len(ains))
	for _, ain := range ains {
		name, err := c.SwitchName(ctx, ain)
		if err != nil {
			return fail("Switch list failed", err)
		}
		reply, err := c.SwitchState(ctx, ain)
		if err != nil {
			return fail("Switch list failed", err)
		}
		outlets = append(outlets, switchStatus{AIN: ain, Name: name, State: decodeState(reply)})
	}

	if outputFormat == formatJSON {
		return printJSON(outlets)
	}
	if len(outlets) == 0 {
		fmt.Println(ui.NewWarningResult("The router manages no switchable outlets").Render())
		return nil
	}

	rows := make([]ui.SwitchRow, 0, len(outlets))
	for _, o := range outlets {
		rows = append(rows, ui.SwitchRow{AIN: o.AIN, Name: o.Name, State: o.State})
	}
	fmt.Println(ui.RenderSwitchTable(rows))
	return nil
}

func runSwitchState(cmd *cobra.Command, args []string) error {
	c, err := newController(cmd)
	if err != nil {
		return err
	}

	reply, err := c.SwitchState(cmd.Context(), args[0])
	if err != nil {
		return fail("Switch query failed", err)
	}
	return printSwitch(args[0], reply)
}

// runSwitchCommand wraps a state-changing switch command
func runSwitchCommand(do func(*homeauto.Controller, *cobra.Command, string) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newController(cmd)
		if err != nil {
			return err
		}

		reply, err := do(c, cmd, args[0])
		if err != nil {
			return fail("Switch command failed", err)
		}
		return printSwitch(args[0], reply)
	}
}

func printSwitch(ain, reply string) error {
	state := decodeState(reply)
	if outputFormat == formatJSON {
		return printJSON(switchStatus{AIN: ain, State: state})
	}
	fmt.Printf("%s  %s\n", ain, ui.SwitchLabel(state))
	return nil
}

// decodeState maps the router reply to on/off/unknown, keeping replies
// it does not recognise verbatim
func decodeState(reply string) string {
	state, err := homeauto.ParseState(reply)
	if err != nil {
		return reply
	}
	return state.String()
}
