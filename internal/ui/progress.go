// Package ui provides terminal UI components for scout.
package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// StageStatus represents the state of a single pipeline stage.
type StageStatus int

const (
	StatusPending StageStatus = iota
	StatusRunning
	StatusCompleted
)

// StageState holds the display state of a single stage.
type StageState struct {
	Name    string
	Label   string
	Status  StageStatus
	Detail  string
	Started time.Time
	Elapsed time.Duration
}

// DefaultStages are the research stages and their display labels.
var DefaultStages = [][2]string{
	{"questions", "Planning research questions"},
	{"sources", "Collecting sources"},
	{"findings", "Extracting findings"},
	{"report", "Writing report"},
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ProgressDisplay renders stage progress while a research run executes.
// It satisfies research.Observer.
//
// On a terminal the whole stage list is redrawn in place after every
// transition. Anywhere else each transition is printed as one plain line.
type ProgressDisplay struct {
	mu     sync.Mutex
	out    io.Writer
	topic  string
	stages []*StageState
	isTTY  bool
	drawn  int
	now    func() time.Time
}

// NewProgressDisplay creates a ProgressDisplay writing to out.
func NewProgressDisplay(out io.Writer, topic string) *ProgressDisplay {
	p := &ProgressDisplay{out: out, topic: topic, now: time.Now}
	if f, ok := out.(*os.File); ok {
		p.isTTY = term.IsTerminal(int(f.Fd()))
	}
	for _, s := range DefaultStages {
		p.stages = append(p.stages, &StageState{Name: s[0], Label: s[1]})
	}
	return p
}

// StageStarted marks stage as running.
func (p *ProgressDisplay) StageStarted(stage string) {
	p.update(stage, func(st *StageState) {
		st.Status = StatusRunning
		st.Started = p.now()
	})
}

// StageFinished marks stage as done with a short detail such as a count.
func (p *ProgressDisplay) StageFinished(stage, detail string) {
	p.update(stage, func(st *StageState) {
		st.Status = StatusCompleted
		st.Detail = detail
		if !st.Started.IsZero() {
			st.Elapsed = p.now().Sub(st.Started)
		}
	})
}

// Finish moves the cursor below the display.
func (p *ProgressDisplay) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isTTY && p.drawn > 0 {
		fmt.Fprintln(p.out)
	}
}

func (p *ProgressDisplay) update(stage string, apply func(*StageState)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.stage(stage)
	apply(st)
	if p.isTTY {
		p.redraw()
		return
	}
	fmt.Fprintln(p.out, plainLine(st))
}

// stage returns the state for name. Unknown stages are appended with their
// name as label.
func (p *ProgressDisplay) stage(name string) *StageState {
	for _, st := range p.stages {
		if st.Name == name {
			return st
		}
	}
	st := &StageState{Name: name, Label: name}
	p.stages = append(p.stages, st)
	return st
}

func (p *ProgressDisplay) redraw() {
	const clearLine = "\033[2K"

	var b strings.Builder
	if p.drawn > 0 {
		fmt.Fprintf(&b, "\033[%dA", p.drawn)
	}
	b.WriteString(clearLine + headerStyle.Render(fmt.Sprintf("\U0001F50E Researching %q", p.topic)) + "\n")
	b.WriteString(clearLine + "\n")
	for _, st := range p.stages {
		fmt.Fprintf(&b, "%s  %s %s  %s\n", clearLine, statusIcon(st.Status), st.Label, statusDetail(st))
	}
	fmt.Fprint(p.out, b.String())
	p.drawn = len(p.stages) + 2
}

func plainLine(st *StageState) string {
	switch st.Status {
	case StatusRunning:
		return "[RUNNING] " + st.Label
	case StatusCompleted:
		line := "[DONE " + formatDuration(st.Elapsed) + "] " + st.Label
		if st.Detail != "" {
			line += ": " + st.Detail
		}
		return line
	}
	return "[PENDING] " + st.Label
}

func statusIcon(status StageStatus) string {
	switch status {
	case StatusCompleted:
		return doneStyle.Render("✅")
	case StatusRunning:
		return runningStyle.Render("⏳")
	}
	return pendingStyle.Render("○")
}

func statusDetail(st *StageState) string {
	switch st.Status {
	case StatusCompleted:
		parts := []string{formatDuration(st.Elapsed)}
		if st.Detail != "" {
			parts = append([]string{st.Detail}, parts...)
		}
		return pendingStyle.Render("[" + strings.Join(parts, ", ") + "]")
	case StatusRunning:
		return runningStyle.Render("[running]")
	}
	return pendingStyle.Render("[pending]")
}

// formatDuration renders d rounded to the second, as in 45s, 1m15s or
// 1h2m3s.
func formatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60

	var b strings.Builder
	if h > 0 {
		b.WriteString(strconv.Itoa(h) + "h")
	}
	if h > 0 || m > 0 {
		b.WriteString(strconv.Itoa(m) + "m")
	}
	b.WriteString(strconv.Itoa(s) + "s")
	return b.String()
}
