package queues

import (
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/ui/common"
)

var (
	labelStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Width(16)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(common.COLOR_GREEN))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_YELLOW))

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_RED))
)

type Model struct {
	Deliveries map[domain.DeliveryStatus]int
	Inbox      map[domain.InboxStatus]int
	Width      int
	Height     int
	Error      string
}

func InitialModel(width, height int) Model {
	return Model{
		Deliveries: map[domain.DeliveryStatus]int{},
		Inbox:      map[domain.InboxStatus]int{},
		Width:      width,
		Height:     height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadCounts()
}

type countsLoadedMsg struct {
	deliveries map[domain.DeliveryStatus]int
	inbox      map[domain.InboxStatus]int
	err        error
}

func loadCounts() tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		err, deliveries := database.CountDeliveriesByStatus()
		if err != nil {
			log.Printf("Console: Failed to count deliveries: %v", err)
			return countsLoadedMsg{err: err}
		}
		err, inbox := database.CountInboxByStatus()
		if err != nil {
			log.Printf("Console: Failed to count inbox: %v", err)
			return countsLoadedMsg{err: err}
		}
		return countsLoadedMsg{deliveries: deliveries, inbox: inbox}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case countsLoadedMsg:
		if msg.err != nil {
			m.Error = msg.err.Error()
			return m, nil
		}
		m.Error = ""
		m.Deliveries = msg.deliveries
		m.Inbox = msg.inbox
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "r" {
			return m, loadCounts()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render("queue health"))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("delivery queue"))
	s.WriteString("\n")
	s.WriteString(countLine("pending", m.Deliveries[domain.DeliveryPending], warnStyle))
	s.WriteString(countLine("processing", m.Deliveries[domain.DeliveryProcessing], warnStyle))
	s.WriteString(countLine("delivered", m.Deliveries[domain.DeliveryDelivered], okStyle))
	s.WriteString(countLine("failed", m.Deliveries[domain.DeliveryFailed], badStyle))
	s.WriteString("\n")

	s.WriteString(labelStyle.Render("inbox queue"))
	s.WriteString("\n")
	s.WriteString(countLine("pending", m.Inbox[domain.InboxPending], warnStyle))
	s.WriteString(countLine("processing", m.Inbox[domain.InboxProcessing], warnStyle))
	s.WriteString(countLine("processed", m.Inbox[domain.InboxProcessed], okStyle))
	s.WriteString(countLine("failed", m.Inbox[domain.InboxFailed], badStyle))

	s.WriteString("\n")
	s.WriteString(common.HelpStyle.Render("r: refresh"))

	if m.Error != "" {
		s.WriteString("\n")
		s.WriteString(common.ErrorStyle.Render("Error: " + m.Error))
	}

	return s.String()
}

func countLine(label string, count int, style lipgloss.Style) string {
	value := style.Render(fmt.Sprintf("%d", count))
	return fmt.Sprintf("    %-12s %s\n", label, value)
}
