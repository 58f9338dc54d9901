package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TransferMode is send or receive.
type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

type tickMsg time.Time

type progressMsg struct {
	current int64
	total   int64
}

type finishedMsg struct {
	err error
}

// TransferUI shows live progress for one file in an inline bubbletea program.
type TransferUI struct {
	program *tea.Program
	model   *transferModel
	wg      sync.WaitGroup
	stop    sync.Once

	// cancelled is closed when the user quits the program.
	cancelled chan struct{}
}

type transferModel struct {
	mode     TransferMode
	name     string
	total    int64
	current  int64
	started  time.Time
	bar      progress.Model
	spinner  spinner.Model
	err      error
	done     bool
	quitting bool

	cancelled chan struct{}
}

// NewTransferUI creates the UI for a file of the given size. Size may be
// unknown (zero) until SetTotal is called.
func NewTransferUI(mode TransferMode, name string, size int64) *TransferUI {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	cancelled := make(chan struct{})
	model := &transferModel{
		mode:  mode,
		name:  name,
		total: size,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		spinner:   s,
		cancelled: cancelled,
	}
	return &TransferUI{model: model, cancelled: cancelled}
}

// Start runs the program in a goroutine. Previous terminal output stays
// visible since no alt screen is used.
func (u *TransferUI) Start() {
	u.program = tea.NewProgram(u.model)
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		if _, err := u.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Cancelled is closed if the user quits with q or ctrl+c.
func (u *TransferUI) Cancelled() <-chan struct{} {
	return u.cancelled
}

// Update reports bytes transferred so far.
func (u *TransferUI) Update(current, total int64) {
	if u.program != nil {
		u.program.Send(progressMsg{current: current, total: total})
	}
}

// Finish marks the transfer done (err == nil) or failed and stops the
// program.
func (u *TransferUI) Finish(err error) {
	u.stop.Do(func() {
		if u.program != nil {
			u.program.Send(finishedMsg{err: err})
		}
		u.wg.Wait()
	})
}

func (m *transferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			close(m.cancelled)
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(30, msg.Width-60))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.done {
			return m, tick()
		}

	case progressMsg:
		if m.started.IsZero() && msg.current > 0 {
			m.started = time.Now()
		}
		m.current = msg.current
		if msg.total > 0 {
			m.total = msg.total
		}

	case finishedMsg:
		m.done = true
		m.err = msg.err
		if msg.err == nil {
			m.current = m.total
		}
		return m, tea.Quit

	case progress.FrameMsg:
		model, cmd := m.bar.Update(msg)
		m.bar = model.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m *transferModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	verb, icon := "Sending", IconSend
	if m.mode == ModeReceive {
		verb, icon = "Receiving", IconReceive
	}

	status := m.spinner.View()
	switch {
	case m.done && m.err != nil:
		status = IconError
	case m.done:
		status = IconSuccess
	}

	fraction := 1.0
	if m.total > 0 {
		fraction = float64(m.current) / float64(m.total)
	}

	b.WriteString(fmt.Sprintf("\n%s %s %s\n\n", icon, verb, BoldStyle.Render(Truncate(m.name, 40))))
	b.WriteString(fmt.Sprintf("  %s %s %5.1f%%", status, m.bar.ViewAs(fraction), fraction*100))
	b.WriteString(MutedStyle.Render(fmt.Sprintf(" (%s/%s)", FormatSize(m.current), FormatSize(m.total))))

	if !m.done && !m.started.IsZero() {
		elapsed := time.Since(m.started).Seconds()
		if elapsed > 0 {
			speed := float64(m.current) / elapsed
			b.WriteString(MutedStyle.Render(" " + FormatSpeed(speed)))
			if remaining := m.total - m.current; remaining > 0 && speed > 0 {
				eta := time.Duration(float64(remaining) / speed * float64(time.Second))
				b.WriteString(MutedStyle.Render(" ETA: " + FormatDuration(eta)))
			}
		}
	}
	b.WriteString("\n")

	if !m.done {
		b.WriteString("\n" + MutedStyle.Render("Press q to cancel") + "\n")
	}
	return b.String()
}
