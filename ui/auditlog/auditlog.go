package auditlog

import (
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/anancus/audit"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/ui/common"
	"github.com/deemkeen/anancus/util"
)

var (
	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(0)

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_LIGHTBLUE)).
			Bold(true)
)

// Model tails the audit log and lets the operator verify the hash
// chain on demand.
type Model struct {
	Entries []domain.AuditLogEntry
	Width   int
	Height  int
	Status  string
	Error   string
}

func InitialModel(width, height int) Model {
	return Model{
		Entries: []domain.AuditLogEntry{},
		Width:   width,
		Height:  height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadEntries()
}

type entriesLoadedMsg struct {
	entries []domain.AuditLogEntry
}

type verifiedMsg struct {
	checked int
	err     error
}

func loadEntries() tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		err, entries := database.ReadAuditEntriesOrdered()
		if err != nil {
			log.Printf("Console: Failed to load audit log: %v", err)
			return entriesLoadedMsg{entries: []domain.AuditLogEntry{}}
		}
		if entries == nil {
			return entriesLoadedMsg{entries: []domain.AuditLogEntry{}}
		}
		return entriesLoadedMsg{entries: *entries}
	}
}

func verifyChain() tea.Cmd {
	return func() tea.Msg {
		chain := audit.NewChain(db.GetDB())
		checked, err := chain.Verify()
		return verifiedMsg{checked: checked, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case entriesLoadedMsg:
		m.Entries = msg.entries
		return m, nil

	case verifiedMsg:
		if msg.err != nil {
			m.Error = msg.err.Error()
			m.Status = ""
		} else {
			m.Status = fmt.Sprintf("Chain intact, %d entries verified", msg.checked)
			m.Error = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "v":
			m.Status = "Verifying..."
			m.Error = ""
			return m, verifyChain()
		case "r":
			m.Status = ""
			m.Error = ""
			return m, loadEntries()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("audit log (%d entries)", len(m.Entries))))
	s.WriteString("\n\n")

	if len(m.Entries) == 0 {
		s.WriteString(common.EmptyStyle.Render("No audit entries yet."))
	} else {
		// Newest entries at the top, last 15
		start := len(m.Entries) - 15
		if start < 0 {
			start = 0
		}
		for i := len(m.Entries) - 1; i >= start; i-- {
			entry := m.Entries[i]
			s.WriteString(itemStyle.Render(fmt.Sprintf(
				"%s  %s %s by %s (%s) → %s",
				entry.Timestamp.Format(util.DateTimeFormat()),
				actionStyle.Render(entry.Action),
				entry.Target,
				entry.ActorId,
				entry.ActorType,
				entry.Checksum[:12],
			)))
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(common.HelpStyle.Render("v: verify chain  r: refresh"))

	if m.Status != "" {
		s.WriteString("\n")
		s.WriteString(common.StatusStyle.Render(m.Status))
	}
	if m.Error != "" {
		s.WriteString("\n")
		s.WriteString(common.ErrorStyle.Render("Error: " + m.Error))
	}

	return s.String()
}
