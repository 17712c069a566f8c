package deliveries

import (
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/ui/common"
	"github.com/deemkeen/anancus/util"
	"github.com/google/uuid"
)

var (
	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(0)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(0).
			Foreground(lipgloss.Color(common.COLOR_LIGHTBLUE)).
			Bold(true)
)

// Model shows the terminally failed deliveries, the ones that exhausted
// their retry budget and need an operator decision.
type Model struct {
	Items    []domain.DeliveryQueueItem
	Selected int
	Width    int
	Height   int
	Status   string
	Error    string
}

func InitialModel(width, height int) Model {
	return Model{
		Items:  []domain.DeliveryQueueItem{},
		Width:  width,
		Height: height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadFailed()
}

type failedLoadedMsg struct {
	items []domain.DeliveryQueueItem
}

type requeuedMsg struct {
	id  uuid.UUID
	err error
}

func loadFailed() tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		err, items := database.ReadDeliveriesByStatus(domain.DeliveryFailed, 50)
		if err != nil {
			log.Printf("Console: Failed to load failed deliveries: %v", err)
			return failedLoadedMsg{items: []domain.DeliveryQueueItem{}}
		}
		if items == nil {
			return failedLoadedMsg{items: []domain.DeliveryQueueItem{}}
		}
		return failedLoadedMsg{items: *items}
	}
}

func requeue(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		err := db.GetDB().RequeueFailedDelivery(id, time.Now())
		if err != nil {
			log.Printf("Console: Failed to requeue delivery %s: %v", id, err)
		}
		return requeuedMsg{id: id, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case failedLoadedMsg:
		m.Items = msg.items
		if m.Selected >= len(m.Items) {
			m.Selected = max(0, len(m.Items)-1)
		}
		return m, nil

	case requeuedMsg:
		if msg.err != nil {
			m.Error = "Requeue failed: " + msg.err.Error()
			m.Status = ""
		} else {
			m.Status = "Delivery requeued with a fresh retry budget"
			m.Error = ""
		}
		return m, loadFailed()

	case tea.KeyMsg:
		m.Status = ""
		m.Error = ""

		switch msg.String() {
		case "up", "k":
			if m.Selected > 0 {
				m.Selected--
			}
		case "down", "j":
			if len(m.Items) > 0 && m.Selected < len(m.Items)-1 {
				m.Selected++
			}
		case "r":
			return m, loadFailed()
		case "enter":
			if len(m.Items) > 0 && m.Selected < len(m.Items) {
				return m, requeue(m.Items[m.Selected].Id)
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("failed deliveries (%d)", len(m.Items))))
	s.WriteString("\n\n")

	if len(m.Items) == 0 {
		s.WriteString(common.EmptyStyle.Render("No failed deliveries."))
	} else {
		for i, item := range m.Items {
			prefix := "  "
			style := itemStyle
			if i == m.Selected {
				prefix = "> "
				style = selectedStyle
			}

			s.WriteString(style.Render(fmt.Sprintf(
				"%s%s → %s (retries: %d, last: %s)",
				prefix,
				item.ActivityURI,
				item.InboxURI,
				item.RetryCount,
				item.LastError,
			)))
			s.WriteString("\n")
			if i == m.Selected && item.LastAttemptAt != nil {
				s.WriteString(common.HelpStyle.Render(
					"last attempt: " + item.LastAttemptAt.Format(util.DateTimeFormat())))
				s.WriteString("\n")
			}
		}

		s.WriteString("\n")
		s.WriteString(common.HelpStyle.Render("enter: requeue  r: refresh  ↑/↓: navigate"))
		s.WriteString("\n")
	}

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

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
