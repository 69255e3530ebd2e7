package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/canvaspaint/internal/paint"
	"github.com/jask/canvaspaint/internal/remote"
)

const maxEvents = 6

// App shows a running paint job. The run itself lives on another goroutine
// and talks to the program through Reporter.
type App struct {
	title  string
	cancel context.CancelFunc

	progress  paint.Progress
	bar       progress.Model
	wait      *paint.Wait
	waitStart time.Time
	waitSeq   int
	challenge paint.ChallengeState
	events    []string
	status    string
	stopping  bool
	width     int

	report *paint.Report
	err    error

	keys keyMap
	now  func() time.Time
}

type keyMap struct {
	Stop key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Stop: key.NewBinding(key.WithKeys("s", "q", "ctrl+c"), key.WithHelp("s/q", "stop")),
	}
}

// New builds the paint view. cancel stops the run; title names the job.
func New(title string, cancel context.CancelFunc) *App {
	return &App{
		title:  title,
		cancel: cancel,
		bar:    progress.New(progress.WithGradient(string(colorMauve), string(colorLavender)), progress.WithWidth(40)),
		status: "querying charges...",
		keys:   defaultKeys(),
		now:    time.Now,
	}
}

// Result is the terminal report once the run has finished.
func (a *App) Result() (*paint.Report, error) { return a.report, a.err }

type (
	progressMsg  paint.Progress
	attemptMsg   paint.Attempt
	waitMsg      paint.Wait
	challengeMsg paint.ChallengeState
	doneMsg      struct {
		report paint.Report
		err    error
	}
	waitTickMsg struct{ seq int }
)

// Done is sent by the caller when the run returns.
func Done(r paint.Report, err error) tea.Msg { return doneMsg{report: r, err: err} }

// Reporter forwards run events into a running program.
type Reporter struct {
	Send func(tea.Msg)
}

func (r Reporter) Progress(p paint.Progress)        { r.Send(progressMsg(p)) }
func (r Reporter) Attempt(at paint.Attempt)         { r.Send(attemptMsg(at)) }
func (r Reporter) Wait(w paint.Wait)                { r.Send(waitMsg(w)) }
func (r Reporter) Challenge(c paint.ChallengeState) { r.Send(challengeMsg(c)) }

func (a *App) Init() tea.Cmd { return nil }

// waitTickCmd fires once a second while a wait is shown.
func waitTickCmd(seq int) tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return waitTickMsg{seq: seq}
	})
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(m, a.keys.Stop) {
			if a.report != nil {
				return a, tea.Quit
			}
			if !a.stopping {
				a.stopping = true
				a.status = "stopping after the current pixel..."
				if a.cancel != nil {
					a.cancel()
				}
			}
		}
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.bar.Width = max(10, min(60, m.Width-24))
	case progressMsg:
		a.progress = paint.Progress(m)
		a.wait = nil
		if !a.stopping && !a.challenge.Active {
			a.status = "painting"
		}
	case attemptMsg:
		a.addEvent(describeAttempt(paint.Attempt(m)))
	case waitMsg:
		w := paint.Wait(m)
		a.wait = &w
		a.waitStart = a.now()
		a.waitSeq++
		if !a.stopping {
			a.status = fmt.Sprintf("waiting %s (%s)", paint.FormatDuration(w.Duration), w.Reason)
		}
		return a, waitTickCmd(a.waitSeq)
	case waitTickMsg:
		// a newer wait owns its own chain
		if m.seq != a.waitSeq || a.wait == nil || a.report != nil {
			return a, nil
		}
		if a.now().Sub(a.waitStart) >= a.wait.Duration {
			return a, nil
		}
		return a, waitTickCmd(m.seq)
	case challengeMsg:
		a.challenge = paint.ChallengeState(m)
		switch a.challenge.Phase {
		case paint.PhaseActive:
			if a.challenge.Backoff == 0 {
				a.addEvent(errorStyle.Render("challenge required"))
			}
		case paint.PhaseCleared:
			a.addEvent(infoStyle.Render("challenge cleared, resuming"))
		case paint.PhaseCancelled:
			a.addEvent(errorStyle.Render("challenge recovery cancelled"))
		}
	case doneMsg:
		a.report = &m.report
		a.err = m.err
		a.status = describeReport(m.report)
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) addEvent(s string) {
	a.events = append(a.events, s)
	if len(a.events) > maxEvents {
		a.events = a.events[len(a.events)-maxEvents:]
	}
}

func describeAttempt(at paint.Attempt) string {
	where := fmt.Sprintf("%d,%d color %d", at.At.X, at.At.Y, at.Cell.Color)
	switch at.Outcome {
	case remote.Painted:
		return paintedStyle.Render("painted  ") + where
	case remote.Rejected:
		return rejectedStyle.Render("rejected ") + where
	case remote.ChallengeRequired:
		return errorStyle.Render("challenge ") + where
	default:
		msg := transientStyle.Render("retrying ") + where
		if at.Err != nil {
			msg += ": " + at.Err.Error()
		}
		return msg
	}
}

func describeReport(r paint.Report) string {
	switch r.Status {
	case paint.Completed:
		return fmt.Sprintf("painting complete: %d pixels in %s", r.Painted, paint.FormatDuration(r.Elapsed))
	case paint.Stopped:
		return fmt.Sprintf("painting paused at %d,%d", r.Cursor.Col, r.Cursor.Row)
	default:
		return fmt.Sprintf("painting aborted at %d,%d", r.Cursor.Col, r.Cursor.Row)
	}
}

func (a *App) View() string {
	var b strings.Builder

	header := headerAppStyle.Render("canvaspaint")
	if a.title != "" {
		header += "  " + a.title
	}
	b.WriteString(headerBarStyle.Render(header))
	b.WriteString("\n\n")

	if a.challenge.Active {
		msg := "Challenge required. Solve it in your browser; painting resumes once it clears."
		if a.challenge.Backoff > 0 {
			msg += fmt.Sprintf("\nnext check in %s", paint.FormatDuration(a.challenge.Backoff))
		}
		b.WriteString(bannerStyle.Render(msg))
		b.WriteString("\n\n")
	}

	p := a.progress
	rows := []string{
		row("progress", fmt.Sprintf("%d/%d (%d%%)", p.Painted, p.Total, p.Percent())),
		row("", a.bar.ViewAs(float64(p.Percent())/100)),
		row("charges", fmt.Sprintf("%d (cooldown %s)", p.Charges.Available(), paint.FormatDuration(p.Charges.Cooldown))),
		row("eta", paint.FormatDuration(p.ETA)),
		row("cursor", fmt.Sprintf("row %d col %d", p.Cursor.Row, p.Cursor.Col)),
	}
	if a.wait != nil {
		left := a.wait.Duration - a.now().Sub(a.waitStart)
		rows = append(rows, row("wait", fmt.Sprintf("%s left (%s)", paint.FormatDuration(left), a.wait.Reason)))
	}
	b.WriteString(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")

	if len(a.events) > 0 {
		b.WriteString(boxStyle.Render(strings.Join(a.events, "\n")))
		b.WriteString("\n")
	}

	b.WriteString(statusBarStyle.Render(a.status))
	b.WriteString("\n")
	help := a.keys.Stop.Help()
	if a.report != nil {
		help.Desc = "close"
	}
	b.WriteString(footerStyle.Render(helpKeyStyle.Render(help.Key) + " " + helpDescStyle.Render(help.Desc)))
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
