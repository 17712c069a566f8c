package followremote

import (
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/deemkeen/anancus/federation"
	"github.com/deemkeen/anancus/ui/common"
)

// Model lets the operator follow a remote actor by URI. The Follow is
// published through the outbox and delivered by the worker like any
// other activity.
type Model struct {
	TextInput textinput.Model
	Publisher *federation.Publisher
	Status    string
	Error     string
}

func InitialModel(publisher *federation.Publisher) Model {
	ti := textinput.New()
	ti.Placeholder = "https://mastodon.social/users/alice"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 60

	return Model{
		TextInput: ti,
		Publisher: publisher,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

type followSentMsg struct {
	actorURI string
	err      error
}

func sendFollow(publisher *federation.Publisher, actorURI string) tea.Cmd {
	return func() tea.Msg {
		inboxURI := strings.TrimRight(actorURI, "/") + "/inbox"
		err := publisher.SendFollow(actorURI, inboxURI)
		if err != nil {
			log.Printf("Console: Follow of %s failed: %v", actorURI, err)
		}
		return followSentMsg{actorURI: actorURI, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case followSentMsg:
		if msg.err != nil {
			m.Error = fmt.Sprintf("Failed: %v", msg.err)
			m.Status = ""
		} else {
			m.Status = fmt.Sprintf("✓ Queued follow request to %s", msg.actorURI)
			m.Error = ""
			m.TextInput.SetValue("")
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				m.Error = "Please enter an actor URI"
				return m, nil
			}
			if !strings.HasPrefix(input, "https://") && !strings.HasPrefix(input, "http://") {
				m.Error = "Invalid format. Use the full actor URI"
				return m, nil
			}

			m.Status = fmt.Sprintf("Following %s...", input)
			m.Error = ""
			return m, sendFollow(m.Publisher, input)
		case "esc":
			m.TextInput.SetValue("")
			m.Status = ""
			m.Error = ""
			return m, nil
		}
	}

	m.TextInput, cmd = m.TextInput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render("follow remote actor"))
	s.WriteString("\n\n")
	s.WriteString("Enter the actor URI to follow:\n\n")
	s.WriteString(m.TextInput.View())
	s.WriteString("\n\n")

	if m.Status != "" {
		s.WriteString(common.StatusStyle.Render(m.Status))
		s.WriteString("\n")
	}
	if m.Error != "" {
		s.WriteString(common.ErrorStyle.Render(m.Error))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(common.HelpStyle.Render("enter: follow • esc: clear"))

	return s.String()
}
