package header

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/anancus/ui/common"
	"github.com/deemkeen/anancus/util"
)

type Model struct {
	Width     int
	ActorName string
	Domain    string
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) View() string {
	return GetHeaderStyle(m.ActorName, m.Domain, m.Width)
}

func GetHeaderStyle(actorName, domain string, width int) string {
	// Each styled box carries 4 chars of padding/border overhead,
	// three boxes in total.
	overhead := 12
	availableWidth := width - overhead

	if availableWidth < 40 {
		availableWidth = 40
	}

	actorWidth := availableWidth / 4
	versionWidth := availableWidth / 2
	domainWidth := availableWidth - actorWidth - versionWidth

	actor := lipgloss.
		NewStyle().
		SetString(actorName).
		Align(lipgloss.Left).
		Background(lipgloss.Color(common.COLOR_PURPLE)).
		Padding(1).
		Height(2).
		Width(actorWidth).
		Border(lipgloss.NormalBorder(), true, false, true, false).
		BorderForeground(lipgloss.Color(common.COLOR_MAGENTA)).
		String()

	version := lipgloss.
		NewStyle().
		SetString(util.GetNameAndVersion()).
		Width(versionWidth).
		Height(2).
		Background(lipgloss.Color(common.COLOR_GREY)).
		Padding(1).
		Border(lipgloss.NormalBorder(), true, false, true, false).
		BorderForeground(lipgloss.Color(common.COLOR_MAGENTA)).
		String()

	domainBox := lipgloss.
		NewStyle().
		SetString("@" + domain).
		Background(lipgloss.Color(common.COLOR_MAGENTA)).
		Padding(1).
		Align(lipgloss.Left).
		Height(2).
		Width(domainWidth).
		Border(lipgloss.NormalBorder(), true, false, true, false).
		BorderForeground(lipgloss.Color(common.COLOR_MAGENTA)).
		String()

	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		actor,
		version,
		domainBox,
	)
}
