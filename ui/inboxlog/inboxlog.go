package inboxlog

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

var itemStyle = lipgloss.NewStyle().
	PaddingLeft(2).
	MarginBottom(0)

// Model shows inbound activities that failed processing. Inbound
// failures are terminal, so this list is the only place they surface
// besides the audit log.
type Model struct {
	Items  []domain.InboxActivity
	Offset int
	Width  int
	Height int
}

func InitialModel(width, height int) Model {
	return Model{
		Items:  []domain.InboxActivity{},
		Width:  width,
		Height: height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadFailed()
}

type failedLoadedMsg struct {
	items []domain.InboxActivity
}

func loadFailed() tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		err, items := database.ReadInboxByStatus(domain.InboxFailed, 50)
		if err != nil {
			log.Printf("Console: Failed to load failed inbox activities: %v", err)
			return failedLoadedMsg{items: []domain.InboxActivity{}}
		}
		if items == nil {
			return failedLoadedMsg{items: []domain.InboxActivity{}}
		}
		return failedLoadedMsg{items: *items}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case failedLoadedMsg:
		m.Items = msg.items
		m.Offset = 0
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Offset > 0 {
				m.Offset--
			}
		case "down", "j":
			if len(m.Items) > 0 && m.Offset < len(m.Items)-1 {
				m.Offset++
			}
		case "r":
			return m, loadFailed()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("failed inbox activities (%d)", len(m.Items))))
	s.WriteString("\n\n")

	if len(m.Items) == 0 {
		s.WriteString(common.EmptyStyle.Render("No failed inbound activities."))
	} else {
		itemsPerPage := 10
		start := m.Offset
		end := start + itemsPerPage
		if end > len(m.Items) {
			end = len(m.Items)
		}

		for i := start; i < end; i++ {
			item := m.Items[i]
			s.WriteString(itemStyle.Render(fmt.Sprintf(
				"• %s %s from %s",
				item.ActivityType,
				item.ActivityURI,
				item.RemoteActorId,
			)))
			s.WriteString("\n")
			s.WriteString(common.ErrorStyle.PaddingLeft(4).Render(item.ErrorMessage))
			s.WriteString("\n")
		}

		s.WriteString("\n")
		s.WriteString(common.HelpStyle.Render("r: refresh  ↑/↓: scroll"))
	}

	return s.String()
}
