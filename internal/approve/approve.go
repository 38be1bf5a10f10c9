package approve

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

var (
	// ErrNotInteractive is returned when approval is required but no
	// terminal is attached and --yes was not given.
	ErrNotInteractive = errors.New("approval required but no interactive terminal is attached (use --yes)")

	// ErrAborted is returned when the user cancels the prompt (ctrl+c/esc).
	ErrAborted = errors.New("approval prompt aborted")

	// ErrTimedOut is returned when the approval timeout elapses before
	// the user answers.
	ErrTimedOut = errors.New("approval prompt timed out")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	detailStyle   = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirmModel is the bubbletea model for the yes/no approval prompt.
type confirmModel struct {
	title   string
	detail  string
	value   bool
	done    bool
	aborted bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			m.done = true
			return m, tea.Quit
		case "y", "Y":
			m.value = true
			m.done = true
			return m, tea.Quit
		case "n", "N":
			m.value = false
			m.done = true
			return m, tea.Quit
		case "left", "right", "tab", "h", "l":
			m.value = !m.value
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	if m.detail != "" {
		b.WriteString(detailStyle.Render(m.detail) + "\n\n")
	}
	yes := " Yes "
	no := " No "
	if m.value {
		yes = selectedStyle.Render(" Yes ")
	} else {
		no = selectedStyle.Render(" No ")
	}
	b.WriteString(fmt.Sprintf("%s %s / %s\n", titleStyle.Render(m.title), yes, no))
	return b.String()
}

// Confirm shows the approval prompt and reports the decision. detail
// is rendered above the question (typically the diff summary). A zero
// timeout waits indefinitely, mirroring the original manual gate.
func Confirm(ctx context.Context, title, detail string, timeout time.Duration) (bool, error) {
	if !IsInteractive() {
		return false, ErrNotInteractive
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m := confirmModel{title: title, detail: detail}
	result, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return false, promptError(ctx, err)
	}

	rm := result.(confirmModel)
	if rm.aborted {
		return false, ErrAborted
	}
	return rm.value, nil
}

// promptError maps a failed prompt run to the gate's sentinel errors.
// A killed program means the context ended: either the timeout elapsed
// or the run was interrupted.
func promptError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimedOut
	}
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "approval interrupted")
	}
	return errors.Wrap(err, "approval prompt failed")
}

// inputModel is the bubbletea model for single-line text input with
// validation, used to edit the commit message at approval time.
type inputModel struct {
	textInput textinput.Model
	title     string
	validate  func(string) error
	errMsg    string
	done      bool
	aborted   bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			val := m.textInput.Value()
			if m.validate != nil {
				if err := m.validate(val); err != nil {
					m.errMsg = err.Error()
					return m, nil
				}
			}
			m.done = true
			return m, tea.Quit
		}
	}
	m.errMsg = ""
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title) + "\n")
	b.WriteString(m.textInput.View() + "\n")
	if m.errMsg != "" {
		b.WriteString(errStyle.Render(m.errMsg) + "\n")
	}
	return b.String()
}

// Input prompts for a line of text. An empty submission returns the
// placeholder, so callers can offer a default the user just accepts.
func Input(ctx context.Context, title, placeholder string) (string, error) {
	if !IsInteractive() {
		return "", ErrNotInteractive
	}

	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()

	m := inputModel{textInput: ti, title: title}
	result, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return "", errors.Wrap(err, "input prompt failed")
	}

	rm := result.(inputModel)
	if rm.aborted {
		return "", ErrAborted
	}
	value := strings.TrimSpace(rm.textInput.Value())
	if value == "" {
		return placeholder, nil
	}
	return value, nil
}
