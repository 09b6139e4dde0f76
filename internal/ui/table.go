package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PresenceRow is one device line of the presence table
type PresenceRow struct {
	Name     string
	Present  bool
	LastSeen time.Time
	Age      time.Duration
}

// PresenceLabel renders present/absent with marker and color
func PresenceLabel(present bool) string {
	if present {
		return PresentStyle.Render(PresentMarker + " present")
	}
	return AbsentStyle.Render(AbsentMarker + " absent")
}

// SwitchLabel renders a switch state
func SwitchLabel(state string) string {
	switch state {
	case "on":
		return PresentStyle.Render(PresentMarker + " on")
	case "off":
		return AbsentStyle.Render(AbsentMarker + " off")
	default:
		return UnknownStyle.Render("? " + state)
	}
}

// FormatAge renders how long ago a device was seen, "now" for the
// latest refresh
func FormatAge(age time.Duration) string {
	if age <= 0 {
		return "now"
	}
	return age.Truncate(time.Second).String() + " ago"
}

// RenderPresenceTable renders the device list as aligned columns
func RenderPresenceTable(rows []PresenceRow) string {
	nameWidth := len("DEVICE")
	for _, row := range rows {
		if w := lipgloss.Width(row.Name); w > nameWidth {
			nameWidth = w
		}
	}
	nameCol := lipgloss.NewStyle().Width(nameWidth + 2)
	stateCol := lipgloss.NewStyle().Width(12)

	lines := []string{
		TableHeaderStyle.Render(nameCol.Render("DEVICE") + stateCol.Render("STATE") + "LAST SEEN"),
	}
	for _, row := range rows {
		lines = append(lines, nameCol.Render(row.Name)+
			stateCol.Render(PresenceLabel(row.Present))+
			fmt.Sprintf("%s (%s)", row.LastSeen.Local().Format("15:04:05"), FormatAge(row.Age)))
	}
	return strings.Join(lines, "\n")
}

// SwitchRow is one line of the switch table
type SwitchRow struct {
	AIN   string
	Name  string
	State string
}

// RenderSwitchTable renders outlets as aligned columns
func RenderSwitchTable(rows []SwitchRow) string {
	ainWidth, nameWidth := len("AIN"), len("NAME")
	for _, row := range rows {
		ainWidth = max(ainWidth, lipgloss.Width(row.AIN))
		nameWidth = max(nameWidth, lipgloss.Width(row.Name))
	}
	ainCol := lipgloss.NewStyle().Width(ainWidth + 2)
	nameCol := lipgloss.NewStyle().Width(nameWidth + 2)

	lines := []string{
		TableHeaderStyle.Render(ainCol.Render("AIN") + nameCol.Render("NAME") + "STATE"),
	}
	for _, row := range rows {
		lines = append(lines, ainCol.Render(row.AIN)+nameCol.Render(row.Name)+SwitchLabel(row.State))
	}
	return strings.Join(lines, "\n")
}
