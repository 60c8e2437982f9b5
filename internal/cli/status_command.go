package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"snap-memories-downloader/internal/ledger"
	"snap-memories-downloader/internal/model"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	output := fs.String("output", "memories", "output directory of a previous run")
	interactive := fs.Bool("interactive", false, "browse ledger records in a TUI")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(ledger.Path(*output)); err != nil {
		fmt.Printf("no ledger found in %s\n", *output)
		fmt.Println("start here:")
		fmt.Println("  snap-memories-downloader run --manifest memories_history.html --output " + *output)
		return nil
	}

	led, err := ledger.Load(ledger.Path(*output))
	if err != nil {
		return err
	}

	if *interactive {
		return browseStatus(*output, led)
	}

	counts := led.Counts()
	if *jsonOut {
		return printJSON(struct {
			RunID   string         `json:"run_id"`
			Summary ledger.Summary `json:"summary"`
			Bytes   int64          `json:"bytes_on_disk"`
		}{led.RunID, counts, recordedBytes(led.Records)})
	}

	fmt.Printf("ledger: %s\n", ledger.Path(*output))
	fmt.Printf("run_id: %s\n", led.RunID)
	fmt.Printf("total: %d\n", counts.Total)
	fmt.Printf("success: %d (%d files, %s)\n", counts.Success, counts.Files, formatBytesIEC(recordedBytes(led.Records)))
	fmt.Printf("pending: %d\n", counts.Pending)
	fmt.Printf("in_progress: %d\n", counts.InProgress)
	fmt.Printf("failed: %d\n", counts.Failed)
	if counts.Warnings > 0 {
		fmt.Printf("metadata_warnings: %d\n", counts.Warnings)
	}

	if counts.Failed > 0 {
		fmt.Println()
		fmt.Println("failed entries:")
		for i := range led.Records {
			rec := &led.Records[i]
			if rec.Status != model.StatusFailed {
				continue
			}
			line := fmt.Sprintf("  #%s [%s]", rec.BaseName(), rec.Reason)
			if rec.Error != "" {
				line += " " + firstLine(rec.Error, 100)
			}
			fmt.Println(line)
		}
	}
	return nil
}

func recordedBytes(records []model.Record) int64 {
	var total int64
	for i := range records {
		for _, f := range records[i].Files {
			total += f.Size
		}
	}
	return total
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max] + "…"
	}
	return s
}

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusFailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	statusPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

type statusModel struct {
	outputDir string
	records   []model.Record
	visible   []int
	filter    string // "" shows everything
	cursor    int
	width     int
	height    int
}

func browseStatus(outputDir string, led *ledger.Ledger) error {
	m := statusModel{outputDir: outputDir, records: led.Records}
	m.applyFilter("")
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *statusModel) applyFilter(filter string) {
	m.filter = filter
	m.visible = m.visible[:0]
	for i := range m.records {
		if filter == "" || m.records[i].Status == filter {
			m.visible = append(m.visible, i)
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m statusModel) Init() tea.Cmd {
	return nil
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.visible)-1 {
				m.cursor++
			}
		case "g":
			m.cursor = 0
		case "G":
			m.cursor = len(m.visible) - 1
			if m.cursor < 0 {
				m.cursor = 0
			}
		case "a":
			m.applyFilter("")
		case "p":
			m.applyFilter(model.StatusPending)
		case "s":
			m.applyFilter(model.StatusSuccess)
		case "f":
			m.applyFilter(model.StatusFailed)
		}
	}
	return m, nil
}

func (m statusModel) View() string {
	header := statusTitleStyle.Render("memories ledger") + " " + statusMutedStyle.Render(m.outputDir)

	listHeight := m.height - 6
	if listHeight < 5 {
		listHeight = 5
	}

	var rows []string
	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}
	end := start + listHeight
	if end > len(m.visible) {
		end = len(m.visible)
	}
	for pos := start; pos < end; pos++ {
		rec := &m.records[m.visible[pos]]
		line := fmt.Sprintf("#%s %-11s %s %s", rec.BaseName(), rec.Status, rec.MediaKind, rec.CapturedAt.Format("2006-01-02 15:04"))
		switch {
		case pos == m.cursor:
			line = statusSelStyle.Render(line)
		case rec.Status == model.StatusFailed:
			line = statusFailStyle.Render(line)
		case rec.Status == model.StatusSuccess:
			line = statusOKStyle.Render(line)
		}
		rows = append(rows, line)
	}
	if len(rows) == 0 {
		rows = append(rows, statusMutedStyle.Render("no records match this filter"))
	}
	list := strings.Join(rows, "\n")

	details := statusMutedStyle.Render("select a record")
	if m.cursor < len(m.visible) {
		details = renderRecordDetails(&m.records[m.visible[m.cursor]])
	}

	filterLabel := "all"
	if m.filter != "" {
		filterLabel = m.filter
	}
	statusBar := statusMutedStyle.Render(fmt.Sprintf(
		"filter: %s  |  %d/%d records  |  a/p/s/f filter  ↑/↓ move  q quit",
		filterLabel, len(m.visible), len(m.records)))

	body := lipgloss.JoinVertical(lipgloss.Left, list, statusPanelStyle.Render(details))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar)
}

func renderRecordDetails(rec *model.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "entry #%s  %s  captured %s\n", rec.BaseName(), rec.MediaKind, rec.CapturedAt.Format("2006-01-02 15:04:05 MST"))
	if rec.GPS != nil {
		fmt.Fprintf(&b, "gps: %.6f, %.6f\n", rec.GPS.Latitude, rec.GPS.Longitude)
	}
	fmt.Fprintf(&b, "status: %s  attempts: %d\n", rec.Status, rec.Attempts)
	for _, f := range rec.Files {
		fmt.Fprintf(&b, "file: %s (%s)\n", f.Path, formatBytesIEC(f.Size))
	}
	if rec.Reason != "" {
		fmt.Fprintf(&b, "reason: %s\n", rec.Reason)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", firstLine(rec.Error, 120))
	}
	if rec.MetadataWarning != "" {
		fmt.Fprintf(&b, "warning: %s\n", firstLine(rec.MetadataWarning, 120))
	}
	return strings.TrimRight(b.String(), "\n")
}
