// Package tui provides a live terminal status view for a DHCPv6 client
// session ("dhcp6c status --watch").
package tui

import (
	"fmt"
	"net"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	boundStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	waitingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))
)

// LeaseAddress is one IA-Address the client currently holds.
type LeaseAddress struct {
	Address           net.IP
	PreferredLifetime uint32
	ValidLifetime     uint32
	Status            string
}

// Status is a point-in-time view of a client session, supplied by the
// host application (the client state machine is not imported directly so
// this package stays reusable from any status source, e.g. a restored
// persisted record).
type Status struct {
	Interface string
	State     string

	ClientDUID string
	ServerDUID string

	Addresses []LeaseAddress

	AccruedSeconds uint32
	T1             uint32
	T2             uint32

	MessagesSent     map[string]int64
	MessagesReceived map[string]int64
	RetransmitCount  int64

	LastError string
}

// RefreshFunc produces the latest Status; the model calls it once per tick.
type RefreshFunc func() Status

type tickMsg time.Time

type model struct {
	refresh  RefreshFunc
	status   Status
	quitting bool
}

// Run starts the live status view, blocking until the user quits (q or
// Ctrl+C). refresh is invoked roughly once per second.
func Run(refresh RefreshFunc) error {
	m := model{refresh: refresh, status: refresh()}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		m.status = m.refresh()
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf(" dhcp6c — %s ", m.status.Interface)))
	b.WriteString("\n\n")
	b.WriteString(renderState(m.status.State))
	b.WriteString("\n\n")
	b.WriteString(boxStyle.Render(m.renderBody()))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("[q] quit"))

	return b.String()
}

func renderState(state string) string {
	switch state {
	case "BOUND_TO_ADDRESS":
		return boundStyle.Render("● " + state)
	case "":
		return waitingStyle.Render("● (unknown)")
	default:
		return waitingStyle.Render("● " + state)
	}
}

func (m model) renderBody() string {
	s := m.status
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Client DUID:"), s.ClientDUID)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Server DUID:"), orNone(s.ServerDUID))
	fmt.Fprintf(&b, "%s %s / %s\n",
		labelStyle.Render("T1 / T2:"), formatSeconds(s.T1), formatSeconds(s.T2))
	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("Accrued:"), formatSeconds(s.AccruedSeconds))

	b.WriteString(labelStyle.Render("Addresses:"))
	b.WriteString("\n")
	if len(s.Addresses) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, a := range s.Addresses {
		fmt.Fprintf(&b, "  %s  pref=%s valid=%s  %s\n",
			a.Address, formatSeconds(a.PreferredLifetime), formatSeconds(a.ValidLifetime), a.Status)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Retransmits:"), s.RetransmitCount)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Sent:"), formatCounts(s.MessagesSent))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Received:"), formatCounts(s.MessagesReceived))

	if s.LastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("! " + s.LastError))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func formatSeconds(v uint32) string {
	if v == 0xFFFFFFFF {
		return "infinite"
	}
	d := time.Duration(v) * time.Second
	return d.String()
}

func formatCounts(counts map[string]int64) string {
	if len(counts) == 0 {
		return "(none)"
	}
	var parts []string
	for k, v := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", k, v))
	}
	return strings.Join(parts, " ")
}
