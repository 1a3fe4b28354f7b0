package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// quitTimeout bounds how long Stop waits for the program to exit.
const quitTimeout = 2 * time.Second

// TUIRenderer draws an inline spinner and progress bar with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: newIndexModel(NewTracker(), GetStyles(cfg.NoColor || DetectNoColor())),
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	r.program = tea.NewProgram(r.model,
		tea.WithOutput(r.cfg.Output),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(done, total int) {
	r.model.tracker.Update(done, total)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg{})
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(s))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(quitTimeout):
	}
	return nil
}

type (
	progressMsg struct{}
	completeMsg Summary
)

// indexModel is the bubbletea model for a rebuild.
type indexModel struct {
	tracker  *Tracker
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
	summary  *Summary
	quitting bool
}

func newIndexModel(tracker *Tracker, styles Styles) *indexModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active

	return &indexModel{
		tracker: tracker,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorLime),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		styles: styles,
	}
}

// Init implements tea.Model.
func (m *indexModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *indexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(msg.Width-30, 20)
	case completeMsg:
		s := Summary(msg)
		m.summary = &s
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *indexModel) View() string {
	if m.summary != nil {
		return m.renderComplete()
	}
	if m.quitting {
		return m.styles.Error.Render("Interrupted") + "\n"
	}

	stats := m.tracker.Stats()
	if stats.Total == 0 {
		return fmt.Sprintf("%s Loading tasks...\n", m.spinner.View())
	}

	line := fmt.Sprintf("%s Indexing %s  %s",
		m.spinner.View(),
		m.bar.ViewAs(stats.Progress),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)))

	details := []string{fmt.Sprintf("%d / %d tasks", stats.Done, stats.Total)}
	if stats.AvgSpeed > 0 {
		details = append(details, fmt.Sprintf("%.0f/s", stats.AvgSpeed))
	}
	if stats.ETA > 0 {
		details = append(details, "ETA "+formatDuration(stats.ETA))
	}
	return line + "\n" + m.styles.Label.Render(strings.Join(details, "  •  ")) + "\n"
}

func (m *indexModel) renderComplete() string {
	s := m.summary
	lines := []string{
		m.styles.Success.Render("✓ Index rebuilt"),
		"",
		fmt.Sprintf("%s %s", m.styles.Label.Render("Tasks:   "), m.styles.Active.Render(fmt.Sprintf("%d", s.Tasks))),
		fmt.Sprintf("%s %s", m.styles.Label.Render("Duration:"), m.styles.Active.Render(formatDuration(s.Duration))),
	}
	if s.Cleared > 0 {
		lines = append(lines, fmt.Sprintf("%s %d", m.styles.Label.Render("Cleared: "), s.Cleared))
	}
	if s.Model != "" {
		lines = append(lines, fmt.Sprintf("%s %s (%s, %d dims)",
			m.styles.Label.Render("Backend: "), s.Backend, s.Model, s.Dimensions))
	}
	return m.styles.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

var _ Renderer = (*TUIRenderer)(nil)
