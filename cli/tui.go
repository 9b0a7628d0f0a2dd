package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fahmaliyi/otpvault/backend"
	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/otpuri"
	"github.com/fahmaliyi/otpvault/qr"
	"github.com/fahmaliyi/otpvault/totp"
)

type state int

const (
	stateTable state = iota
	stateShowEntry
	stateAddEntry
	stateConfirmDelete
)

const revealFor = 5 * time.Second

type (
	tickMsg    time.Time
	entriesMsg struct {
		entries []entry.Entry
		err     error
	}
	savedMsg struct {
		e   entry.Entry
		err error
	}
	deletedMsg struct {
		name string
		err  error
	}
	hideSecretMsg struct{}
)

type model struct {
	ctx   context.Context
	b     backend.Backend
	clip  *Clipboard
	clock totp.Clock
	log   *slog.Logger

	entries     []entry.Entry
	refreshedAt time.Time
	refreshing  bool
	cursor      int
	state       state
	form        form
	reveal      bool
	bar         progress.Model
	msg         string
	failed      bool
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("0"))
	codeStyle     = lipgloss.NewStyle().Bold(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

func newModel(ctx context.Context, b backend.Backend, clip *Clipboard, clock totp.Clock, log *slog.Logger) model {
	return model{
		ctx:   ctx,
		b:     b,
		clip:  clip,
		clock: clock,
		log:   log,
		state: stateTable,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
	}
}

// RunTUI starts the interactive TUI and blocks until the user quits.
func RunTUI(ctx context.Context, b backend.Backend, clip *Clipboard, log *slog.Logger) error {
	defer clip.Close()

	m := newModel(ctx, b, clip, totp.SystemClock{}, log)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// --- Tea Model interface ---
func (m model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(40, max(10, msg.Width-4))
		return m, nil
	case tickMsg:
		var cmd tea.Cmd
		if !m.refreshing && m.rolledOver() {
			m.refreshing = true
			cmd = m.refresh()
		}
		return m, tea.Batch(cmd, tick())
	case entriesMsg:
		m.refreshing = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.entries = msg.entries
		if m.cursor >= len(m.entries) {
			m.cursor = max(0, len(m.entries)-1)
		}
		return m, nil
	case savedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.state = stateTable
		m.setStatus("Saved " + msg.e.Name)
		return m, m.refresh()
	case deletedMsg:
		m.state = stateTable
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setStatus("Deleted " + msg.name)
		return m, m.refresh()
	case hideSecretMsg:
		m.reveal = false
		return m, nil
	}

	switch m.state {
	case stateShowEntry:
		return updateShowEntry(m, msg)
	case stateAddEntry:
		return updateAddEntry(m, msg)
	case stateConfirmDelete:
		return updateConfirmDelete(m, msg)
	default:
		return updateTable(m, msg)
	}
}

func (m model) View() string {
	switch m.state {
	case stateShowEntry:
		return viewShowEntry(m)
	case stateAddEntry:
		return viewAddEntry(m)
	case stateConfirmDelete:
		return viewConfirmDelete(m)
	default:
		return viewTable(m)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) refresh() tea.Cmd {
	ctx, b := m.ctx, m.b
	return func() tea.Msg {
		entries, err := b.Refresh(ctx)
		return entriesMsg{entries: entries, err: err}
	}
}

// rolledOver reports whether any entry entered a new time window since the
// last refresh. The first call always reports true.
func (m *model) rolledOver() bool {
	now := m.clock.Now()
	if m.refreshedAt.IsZero() {
		m.refreshedAt = now
		return true
	}
	for _, e := range m.entries {
		step := int64(e.Config.Step)
		if step > 0 && m.refreshedAt.Unix()/step != now.Unix()/step {
			m.refreshedAt = now
			return true
		}
	}
	return false
}

func (m model) current() (entry.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return entry.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m *model) setStatus(s string) {
	m.msg, m.failed = s, false
}

func (m *model) setError(err error) {
	m.log.Error("tui action failed", slog.Any("error", err))
	m.msg, m.failed = err.Error(), true
}

func (m model) status() string {
	if m.msg == "" {
		return ""
	}
	if m.failed {
		return "\n" + errStyle.Render(m.msg) + "\n"
	}
	return "\n" + msgStyle.Render(m.msg) + "\n"
}

func (m model) countdown(e entry.Entry) string {
	step := e.Config.Step
	left := totp.Remaining(step, m.clock.Now())
	ratio := 0.0
	if step > 0 {
		ratio = left.Seconds() / float64(step)
	}
	return fmt.Sprintf("%s %2ds", m.bar.ViewAs(ratio), int(left.Seconds()))
}

// --- Table ---
func updateTable(m model, msg tea.Msg) (model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "a":
		m.form = newForm(entry.NewInput())
		m.state = stateAddEntry
		cmd := m.form.focusCmd()
		return m, cmd
	case "r":
		m.refreshing = true
		return m, m.refresh()
	}

	e, ok := m.current()
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "enter":
		m.reveal = false
		m.state = stateShowEntry
	case "e":
		in := entry.InputFromEntry(e)
		in.Name = ""
		m.form = newForm(in)
		m.state = stateAddEntry
		cmd := m.form.focusCmd()
		return m, cmd
	case "d":
		m.state = stateConfirmDelete
	case "c":
		m.copyCode(e)
	}
	return m, nil
}

func (m *model) copyCode(e entry.Entry) {
	code, err := e.Generate(m.clock.Now())
	if err != nil {
		m.setError(err)
		return
	}
	if err := m.clip.Copy(code); err != nil {
		m.setError(err)
		return
	}
	if d := m.clip.ClearAfter(); d > 0 {
		m.setStatus(fmt.Sprintf("Code copied! (clears in %s)", d))
	} else {
		m.setStatus("Code copied!")
	}
}

func viewTable(m model) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("OTP Vault") + "  " + helpStyle.Render(m.b.Path()) + "\n\n")

	if len(m.entries) == 0 {
		s.WriteString("No entries yet. Press a to add one.\n")
	}
	now := m.clock.Now()
	for i, e := range m.entries {
		left := totp.Remaining(e.Config.Step, now)
		line := fmt.Sprintf("%-32s  %s  %2ds", e.Name, codeStyle.Render(formatCode(e.Code)), int(left.Seconds()))
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		s.WriteString(line + "\n")
	}

	if e, ok := m.current(); ok {
		s.WriteString("\n" + m.countdown(e) + "\n")
	}
	s.WriteString(m.status())
	s.WriteString(helpStyle.Render("\nj/k=move, enter=show, c=copy, a=add, e=edit, d=delete, r=refresh, q=quit"))
	return s.String()
}

// --- Show Entry ---
func updateShowEntry(m model, msg tea.Msg) (model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "esc", "q":
		m.state = stateTable
		m.reveal = false
	case "c":
		if e, ok := m.current(); ok {
			m.copyCode(e)
		}
	case "v":
		m.reveal = true
		return m, tea.Tick(revealFor, func(time.Time) tea.Msg { return hideSecretMsg{} })
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func viewShowEntry(m model) string {
	e, ok := m.current()
	if !ok {
		return "Entry not found\n"
	}

	issuer, account := entry.SplitName(e.Name)
	secret := "********"
	if m.reveal {
		secret = e.Secret
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(e.Name) + "\n\n")
	fmt.Fprintf(&s, "Issuer:    %s\nAccount:   %s\nAlgorithm: %s\nDigits:    %d\nStep:      %ds\nSecret:    %s\n\n",
		issuer, account, e.Config.Algorithm, e.Config.Digits, e.Config.Step, secret)
	fmt.Fprintf(&s, "%s  %s\n", codeStyle.Render(formatCode(e.Code)), m.countdown(e))

	if art, err := qr.Terminal(otpuri.Serialize(e)); err == nil {
		s.WriteString("\n" + art)
	}
	s.WriteString(m.status())
	s.WriteString(helpStyle.Render("\nc=copy, v=reveal secret, esc=back"))
	return s.String()
}

// --- Delete ---
func updateConfirmDelete(m model, msg tea.Msg) (model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	e, ok := m.current()
	if !ok || key.String() != "y" {
		m.state = stateTable
		return m, nil
	}

	ctx, b := m.ctx, m.b
	return m, func() tea.Msg {
		return deletedMsg{name: e.Name, err: b.Delete(ctx, e.ID)}
	}
}

func viewConfirmDelete(m model) string {
	e, _ := m.current()
	return fmt.Sprintf("Delete %q? This cannot be undone. (y/N)\n", e.Name)
}
