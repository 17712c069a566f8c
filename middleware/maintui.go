package middleware

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/deemkeen/anancus/federation"
	"github.com/deemkeen/anancus/ui"
	"github.com/deemkeen/anancus/util"
	"github.com/muesli/termenv"
)

// MainTui serves the operator console to anyone who can reach the SSH
// port. There are no accounts; possession of SSH access is the
// authorization.
func MainTui(conf *util.AppConfig, publisher *federation.Publisher) wish.Middleware {
	teaHandler := func(s ssh.Session) *tea.Program {

		pty, _, active := s.Pty()
		if !active {
			wish.Println(s, "no active terminal, skipping")
			return nil
		}

		m := ui.NewModel(conf.Conf.ActorName, conf.Conf.SslDomain, publisher, pty.Window.Width, pty.Window.Height)
		return tea.NewProgram(m, tea.WithInput(s), tea.WithOutput(s), tea.WithAltScreen())
	}
	return bm.MiddlewareWithProgramHandler(teaHandler, termenv.ANSI256)
}
