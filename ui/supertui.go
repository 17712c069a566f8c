package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/anancus/federation"
	"github.com/deemkeen/anancus/ui/auditlog"
	"github.com/deemkeen/anancus/ui/common"
	"github.com/deemkeen/anancus/ui/deliveries"
	"github.com/deemkeen/anancus/ui/followremote"
	"github.com/deemkeen/anancus/ui/follows"
	"github.com/deemkeen/anancus/ui/header"
	"github.com/deemkeen/anancus/ui/inboxlog"
	"github.com/deemkeen/anancus/ui/queues"
)

var focusedModelStyle = lipgloss.NewStyle().
	Align(lipgloss.Top, lipgloss.Top).
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color(common.COLOR_LIGHTBLUE)).MarginLeft(1)

// MainModel is the operator console served over SSH: queue health,
// failed work, follow edges and the audit chain, one panel at a time.
type MainModel struct {
	width           int
	height          int
	state           common.SessionState
	headerModel     header.Model
	queuesModel     queues.Model
	deliveriesModel deliveries.Model
	inboxModel      inboxlog.Model
	followsModel    follows.Model
	followModel     followremote.Model
	auditModel      auditlog.Model
}

func NewModel(actorName, domain string, publisher *federation.Publisher, width int, height int) MainModel {

	width = common.DefaultWindowWidth(width)
	height = common.DefaultWindowHeight(height)

	m := MainModel{state: common.QueuesView}
	m.headerModel = header.Model{Width: width, ActorName: actorName, Domain: domain}
	m.queuesModel = queues.InitialModel(width, height)
	m.deliveriesModel = deliveries.InitialModel(width, height)
	m.inboxModel = inboxlog.InitialModel(width, height)
	m.followsModel = follows.InitialModel(actorName, width, height)
	m.followModel = followremote.InitialModel(publisher)
	m.auditModel = auditlog.InitialModel(width, height)
	m.width = width
	m.height = height
	return m
}

func (m MainModel) Init() tea.Cmd {
	return tea.Batch(
		m.queuesModel.Init(),
		m.deliveriesModel.Init(),
		m.inboxModel.Init(),
		m.followsModel.Init(),
		m.followModel.Init(),
		m.auditModel.Init(),
	)
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.headerModel.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			oldState := m.state
			switch m.state {
			case common.QueuesView:
				m.state = common.DeliveriesView
			case common.DeliveriesView:
				m.state = common.InboxLogView
			case common.InboxLogView:
				m.state = common.FollowsView
			case common.FollowsView:
				m.state = common.FollowRemoteView
			case common.FollowRemoteView:
				m.state = common.AuditView
			case common.AuditView:
				m.state = common.QueuesView
			}
			if oldState != m.state {
				cmds = append(cmds, m.viewInitCmd(m.state))
			}
		case "shift+tab":
			oldState := m.state
			switch m.state {
			case common.QueuesView:
				m.state = common.AuditView
			case common.DeliveriesView:
				m.state = common.QueuesView
			case common.InboxLogView:
				m.state = common.DeliveriesView
			case common.FollowsView:
				m.state = common.InboxLogView
			case common.FollowRemoteView:
				m.state = common.FollowsView
			case common.AuditView:
				m.state = common.FollowRemoteView
			}
			if oldState != m.state {
				cmds = append(cmds, m.viewInitCmd(m.state))
			}
		}
	}

	// Data messages fan out to every sub-model so loads always land;
	// keyboard input only reaches the focused view.
	if _, isKeyMsg := msg.(tea.KeyMsg); !isKeyMsg {
		m.headerModel, _ = m.headerModel.Update(msg)
		m.queuesModel, cmd = m.queuesModel.Update(msg)
		cmds = append(cmds, cmd)
		m.deliveriesModel, cmd = m.deliveriesModel.Update(msg)
		cmds = append(cmds, cmd)
		m.inboxModel, cmd = m.inboxModel.Update(msg)
		cmds = append(cmds, cmd)
		m.followsModel, cmd = m.followsModel.Update(msg)
		cmds = append(cmds, cmd)
		m.followModel, cmd = m.followModel.Update(msg)
		cmds = append(cmds, cmd)
		m.auditModel, cmd = m.auditModel.Update(msg)
		cmds = append(cmds, cmd)
	}

	if _, ok := msg.(tea.KeyMsg); ok {
		switch m.state {
		case common.QueuesView:
			m.queuesModel, cmd = m.queuesModel.Update(msg)
		case common.DeliveriesView:
			m.deliveriesModel, cmd = m.deliveriesModel.Update(msg)
		case common.InboxLogView:
			m.inboxModel, cmd = m.inboxModel.Update(msg)
		case common.FollowsView:
			m.followsModel, cmd = m.followsModel.Update(msg)
		case common.FollowRemoteView:
			m.followModel, cmd = m.followModel.Update(msg)
		case common.AuditView:
			m.auditModel, cmd = m.auditModel.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m MainModel) View() string {
	var s string

	availableHeight := m.height - 10
	panelWidth := m.width - 6

	panel := lipgloss.NewStyle().
		MaxHeight(availableHeight).
		Height(availableHeight).
		Width(panelWidth).
		MaxWidth(panelWidth).
		Margin(1).
		Render(m.currentView())

	s += lipgloss.NewStyle().Render(m.headerModel.View()) + "\n"
	s += focusedModelStyle.Render(panel)

	s += common.HelpStyle.Render(fmt.Sprintf(
		"\nfocused > %s\t\tkeys > tab: next • shift+tab: prev • ctrl-c: exit",
		m.currentFocusedModel()))
	return lipgloss.NewStyle().Render(s)
}

func (m MainModel) currentView() string {
	switch m.state {
	case common.DeliveriesView:
		return m.deliveriesModel.View()
	case common.InboxLogView:
		return m.inboxModel.View()
	case common.FollowsView:
		return m.followsModel.View()
	case common.FollowRemoteView:
		return m.followModel.View()
	case common.AuditView:
		return m.auditModel.View()
	default:
		return m.queuesModel.View()
	}
}

func (m MainModel) currentFocusedModel() string {
	switch m.state {
	case common.DeliveriesView:
		return "failed deliveries"
	case common.InboxLogView:
		return "failed inbox"
	case common.FollowsView:
		return "follow edges"
	case common.FollowRemoteView:
		return "follow remote"
	case common.AuditView:
		return "audit log"
	default:
		return "queue health"
	}
}

// viewInitCmd reloads a view's data when it gains focus.
func (m *MainModel) viewInitCmd(state common.SessionState) tea.Cmd {
	switch state {
	case common.QueuesView:
		return m.queuesModel.Init()
	case common.DeliveriesView:
		return m.deliveriesModel.Init()
	case common.InboxLogView:
		return m.inboxModel.Init()
	case common.FollowsView:
		return m.followsModel.Init()
	case common.FollowRemoteView:
		return m.followModel.Init()
	case common.AuditView:
		return m.auditModel.Init()
	default:
		return nil
	}
}
