package download

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// dashboard renders a single live status line while workers run. When
// disabled every update is a no-op and the orchestrator prints plain
// per-entry lines instead.
type dashboard struct {
	enabled bool

	mu     sync.Mutex
	bar    progress.Model
	target int
	done   int
	failed int
	active map[int]string

	stop     chan struct{}
	stopOnce sync.Once
}

func newDashboard(enabled bool, target int) *dashboard {
	return &dashboard{
		enabled: enabled,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(24)),
		target:  target,
		active:  make(map[int]string),
		stop:    make(chan struct{}),
	}
}

func (d *dashboard) Start() {
	if !d.enabled {
		return
	}
	go func() {
		t := time.NewTicker(700 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-t.C:
				fmt.Printf("\r\033[2K%s", d.render())
			}
		}
	}()
}

func (d *dashboard) Stop() {
	if !d.enabled {
		return
	}
	d.stopOnce.Do(func() {
		close(d.stop)
		fmt.Printf("\r\033[2K%s\n", d.render())
	})
}

func (d *dashboard) SetTotals(done, failed int) {
	if !d.enabled {
		return
	}
	d.mu.Lock()
	d.done = done
	d.failed = failed
	d.mu.Unlock()
}

func (d *dashboard) SetWorker(id int, label string) {
	if !d.enabled {
		return
	}
	d.mu.Lock()
	d.active[id] = label
	d.mu.Unlock()
}

func (d *dashboard) ClearWorker(id int) {
	if !d.enabled {
		return
	}
	d.mu.Lock()
	delete(d.active, id)
	d.mu.Unlock()
}

func (d *dashboard) render() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	frac := 0.0
	if d.target > 0 {
		frac = float64(d.done+d.failed) / float64(d.target)
	}
	if frac > 1 {
		frac = 1
	}

	parts := []string{
		d.bar.ViewAs(frac),
		okStyle.Render(fmt.Sprintf("ok %d", d.done)),
		failStyle.Render(fmt.Sprintf("fail %d", d.failed)),
		dimStyle.Render(fmt.Sprintf("of %d", d.target)),
	}

	if len(d.active) > 0 {
		ids := make([]int, 0, len(d.active))
		for id := range d.active {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		labels := make([]string, 0, len(ids))
		for _, id := range ids {
			labels = append(labels, fmt.Sprintf("w%d:%s", id, d.active[id]))
		}
		parts = append(parts, dimStyle.Render(strings.Join(labels, " ")))
	}
	return strings.Join(parts, "  ")
}
