package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/sitechat-go/internal/db"
	"github.com/raphaelgruber/sitechat-go/internal/models"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the run status
type tickMsg time.Time

// runUpdateMsg carries the updated crawl run data
type runUpdateMsg struct {
	run *models.CrawlRun
	err error
}

// crawlDoneMsg signals that the foreground crawl goroutine finished.
type crawlDoneMsg struct{ err error }

// progressModel is the bubbletea model for crawl run progress.
type progressModel struct {
	client   *db.Client
	runID    string
	run      *models.CrawlRun
	progress progress.Model
	theme    Theme
	errCh    <-chan error
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(client *db.Client, runID string, errCh <-chan error) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   client,
		runID:    runID,
		progress: prog,
		theme:    defaultTheme,
		errCh:    errCh,
	}
}

// Init returns the initial commands (start polling, watch the crawl).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.watchCrawl(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchRun()

	case runUpdateMsg:
		if msg.err != nil {
			// Transient poll failure, keep going
			return m, tickCmd()
		}
		m.run = msg.run

		if m.run.Status.Terminal() {
			m.done = true
			if m.run.Status == models.CrawlRunStatusFailed && m.run.ErrorSummary != nil {
				m.err = fmt.Errorf("%s", *m.run.ErrorSummary)
			}
			return m, tea.Quit
		}
		return m, tickCmd()

	case crawlDoneMsg:
		if msg.err != nil {
			m.done = true
			m.err = msg.err
			return m, tea.Quit
		}
		// Pick up the terminal run state on the next poll
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.run == nil {
		return "Starting crawl...\n"
	}

	var pct float64
	if m.run.PagesDiscovered > 0 {
		pct = float64(m.run.PagesFetched+m.run.PagesErrored) / float64(m.run.PagesDiscovered)
		if pct > 1 {
			pct = 1
		}
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.run.Status))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d pages, %d errors",
		m.run.PagesFetched, m.run.PagesDiscovered, m.run.PagesErrored)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to abort the crawl")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nAborted. Run %s will be marked cancelled.\n", m.runID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Crawl failed: %s\n", m.err))
	}

	if m.run != nil {
		var output string
		switch m.run.Status {
		case models.CrawlRunStatusCancelled:
			output = m.theme.hintStyle().Render("Crawl cancelled") + "\n\n"
		default:
			output = m.theme.completedStyle().Render("✓ Crawl completed") + "\n\n"
		}
		output += fmt.Sprintf("  Pages discovered: %d\n", m.run.PagesDiscovered)
		output += fmt.Sprintf("  Pages fetched:    %d\n", m.run.PagesFetched)
		output += fmt.Sprintf("  Pages embedded:   %d\n", m.run.PagesEmbedded)
		if m.run.PagesErrored > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("  Pages errored:    %d\n", m.run.PagesErrored))
		}
		return output
	}

	return m.theme.completedStyle().Render("✓ Crawl completed\n")
}

// fetchRun fetches the current run from the database.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchRun() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		run, err := m.client.GetRun(ctx, m.runID)
		return runUpdateMsg{run: run, err: err}
	}
}

// watchCrawl waits for the crawl goroutine to return.
func (m progressModel) watchCrawl() tea.Cmd {
	return func() tea.Msg {
		return crawlDoneMsg{err: <-m.errCh}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runCrawlProgress runs the interactive progress UI for a crawl run.
func runCrawlProgress(client *db.Client, runID string, errCh <-chan error) error {
	model := newProgressModel(client, runID, errCh)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// Ctrl+C aborts the crawl via run cancellation; not an error
		if m.quitting {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if cancelErr := client.CancelRun(ctx, runID); cancelErr != nil {
				return fmt.Errorf("cancel run: %w", cancelErr)
			}
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
