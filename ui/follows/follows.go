package follows

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
	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(0)

	acceptedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_GREEN))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_YELLOW))

	rejectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_RED))
)

type Model struct {
	LocalActorId string
	Direction    db.FollowDirection
	Edges        []domain.FollowEdge
	Offset       int
	Width        int
	Height       int
}

func InitialModel(localActorId string, width, height int) Model {
	return Model{
		LocalActorId: localActorId,
		Direction:    db.Followers,
		Edges:        []domain.FollowEdge{},
		Width:        width,
		Height:       height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadEdges(m.Direction, m.LocalActorId)
}

type edgesLoadedMsg struct {
	direction db.FollowDirection
	edges     []domain.FollowEdge
}

func loadEdges(dir db.FollowDirection, localActorId string) tea.Cmd {
	return func() tea.Msg {
		database := db.GetDB()
		err, edges := database.ListFollowEdges(dir, localActorId, "", 100, 0)
		if err != nil {
			log.Printf("Console: Failed to load %s: %v", dir, err)
			return edgesLoadedMsg{direction: dir, edges: []domain.FollowEdge{}}
		}
		if edges == nil {
			return edgesLoadedMsg{direction: dir, edges: []domain.FollowEdge{}}
		}
		return edgesLoadedMsg{direction: dir, edges: *edges}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case edgesLoadedMsg:
		m.Direction = msg.direction
		m.Edges = msg.edges
		m.Offset = 0
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Offset > 0 {
				m.Offset--
			}
		case "down", "j":
			if len(m.Edges) > 0 && m.Offset < len(m.Edges)-1 {
				m.Offset++
			}
		case "d":
			// Flip between the two edge directions
			dir := db.Followers
			if m.Direction == db.Followers {
				dir = db.Following
			}
			return m, loadEdges(dir, m.LocalActorId)
		case "r":
			return m, loadEdges(m.Direction, m.LocalActorId)
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("%s (%d)", m.Direction, len(m.Edges))))
	s.WriteString("\n\n")

	if len(m.Edges) == 0 {
		s.WriteString(common.EmptyStyle.Render(fmt.Sprintf("No %s yet.", m.Direction)))
	} else {
		itemsPerPage := 10
		start := m.Offset
		end := start + itemsPerPage
		if end > len(m.Edges) {
			end = len(m.Edges)
		}

		for i := start; i < end; i++ {
			edge := m.Edges[i]
			s.WriteString(itemStyle.Render(fmt.Sprintf(
				"• %s %s",
				edge.RemoteActorId,
				statusBadge(edge.Status),
			)))
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(common.HelpStyle.Render("d: flip direction  r: refresh  ↑/↓: scroll"))

	return s.String()
}

func statusBadge(status domain.FollowStatus) string {
	switch status {
	case domain.FollowAccepted:
		return acceptedStyle.Render("[accepted]")
	case domain.FollowPending:
		return pendingStyle.Render("[pending]")
	case domain.FollowRejected:
		return rejectedStyle.Render("[rejected]")
	}
	return string(status)
}
