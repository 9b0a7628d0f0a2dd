package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/totp"
)

const (
	fieldIssuer = iota
	fieldAccount
	fieldSecret
	fieldAlgorithm
	fieldDigits
	fieldStep
	fieldCount
)

var fieldKeys = [fieldCount]string{"issuer", "account_name", "secret", "algorithm", "digits", "step"}

type form struct {
	id         uuid.UUID
	textInputs []textinput.Model
	errors     map[string]string
}

func newForm(in entry.Input) form {
	f := form{id: in.ID, textInputs: make([]textinput.Model, fieldCount)}

	placeholders := [fieldCount]string{"Issuer", "Account", "Secret", "Algorithm", "Digits", "Step"}
	values := [fieldCount]string{
		in.Issuer,
		in.AccountName,
		in.Secret,
		string(in.Algorithm),
		strconv.Itoa(in.Digits),
		strconv.FormatUint(in.Step, 10),
	}
	for i := range f.textInputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.Prompt = ""
		ti.CharLimit = entry.MaxSecretLen * 2
		ti.SetValue(values[i])
		f.textInputs[i] = ti
	}
	f.textInputs[fieldSecret].EchoMode = textinput.EchoPassword
	f.textInputs[fieldSecret].EchoCharacter = '*'
	return f
}

func (f *form) focusCmd() tea.Cmd {
	return f.textInputs[0].Focus()
}

func (f form) focused() int {
	for i, ti := range f.textInputs {
		if ti.Focused() {
			return i
		}
	}
	return -1
}

// focusNext moves focus to the next or previous input.
func (f *form) focusNext(backward bool) tea.Cmd {
	n := len(f.textInputs)
	i := f.focused()
	if i >= 0 {
		f.textInputs[i].Blur()
	}
	if backward {
		i = (i - 1 + n) % n
	} else {
		i = (i + 1) % n
	}
	return f.textInputs[i].Focus()
}

// input converts the text fields. Numeric fields that do not parse are
// reported as field errors.
func (f form) input() (entry.Input, error) {
	in := entry.Input{
		ID:          f.id,
		Issuer:      strings.TrimSpace(f.textInputs[fieldIssuer].Value()),
		AccountName: strings.TrimSpace(f.textInputs[fieldAccount].Value()),
		Secret:      strings.TrimSpace(f.textInputs[fieldSecret].Value()),
		Algorithm:   totp.Algorithm(strings.ToUpper(strings.TrimSpace(f.textInputs[fieldAlgorithm].Value()))),
	}

	fields := map[string]string{}
	digits, err := strconv.Atoi(strings.TrimSpace(f.textInputs[fieldDigits].Value()))
	if err != nil {
		fields["digits"] = "must be a number"
	}
	step, err := strconv.ParseUint(strings.TrimSpace(f.textInputs[fieldStep].Value()), 10, 64)
	if err != nil {
		fields["step"] = "must be a positive number"
	}
	if len(fields) > 0 {
		return in, errs.Validation("invalid entry input", fields)
	}
	in.Digits, in.Step = digits, step
	return in, nil
}

func (f form) entry() (entry.Entry, error) {
	in, err := f.input()
	if err != nil {
		return entry.Entry{}, err
	}
	return in.ToEntry()
}

// --- Add Entry ---
func updateAddEntry(m model, msg tea.Msg) (model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			m.state = stateTable
			return m, nil
		case "tab", "down":
			cmd := m.form.focusNext(false)
			return m, cmd
		case "shift+tab", "up":
			cmd := m.form.focusNext(true)
			return m, cmd
		case "enter", "ctrl+s":
			if key.String() == "enter" && m.form.focused() != fieldCount-1 {
				cmd := m.form.focusNext(false)
				return m, cmd
			}
			return m.submit()
		}
	}

	// Update the focused text input
	i := m.form.focused()
	if i < 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.form.textInputs[i], cmd = m.form.textInputs[i].Update(msg)
	return m, cmd
}

func (m model) submit() (model, tea.Cmd) {
	e, err := m.form.entry()
	if err != nil {
		var ve *errs.Error
		if errors.As(err, &ve) && len(ve.Fields()) > 0 {
			m.form.errors = ve.Fields()
			m.setError(errors.New(ve.Msg()))
			return m, nil
		}
		m.form.errors = nil
		m.setError(err)
		return m, nil
	}

	m.form.errors = nil
	ctx, b := m.ctx, m.b
	return m, func() tea.Msg {
		saved, err := b.Upsert(ctx, e)
		return savedMsg{e: saved, err: err}
	}
}

func viewAddEntry(m model) string {
	title := "Add New Entry"
	if m.form.id != uuid.Nil {
		title = "Edit Entry"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(title) + "\n\n")
	for i, ti := range m.form.textInputs {
		fmt.Fprintf(&s, "%-10s %s\n", ti.Placeholder+":", ti.View())
		if msg, ok := m.form.errors[fieldKeys[i]]; ok {
			s.WriteString(errStyle.Render("           "+msg) + "\n")
		}
	}
	s.WriteString(m.status())
	s.WriteString(helpStyle.Render("\ntab=next field, enter=save on last field, ctrl+s=save, esc=cancel"))
	return s.String()
}
