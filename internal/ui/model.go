package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/0xlemi/guitartune/internal/tuning"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Rows of the deviation graph, in cents, top to bottom.
var graphRows = []float64{30, 15, 5, 0, -5, -15, -30}

// graphSpan is the deviation drawn in the far colour.
const graphSpan = 50.0

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444444"))

	// Note colors
	noteColors = map[string]string{
		"C": "#E8D6B0", // Beige
		"D": "#A020F0", // Purple
		"E": "#FFFF00", // Yellow
		"F": "#FFA500", // Orange
		"G": "#00FF00", // Green
		"A": "#FF0000", // Red
		"B": "#0000FF", // Blue
	}

	inTuneColor, _ = colorful.Hex("#00D75F")
	slightColor, _ = colorful.Hex("#FFD700")
	farColor, _    = colorful.Hex("#FF3030")
)

// tierColor is the graph colour of a tier.
func tierColor(t tuning.Tier) lipgloss.Color {
	switch t {
	case tuning.TierInTune:
		return lipgloss.Color(inTuneColor.Hex())
	case tuning.TierSlight:
		return lipgloss.Color(slightColor.Hex())
	case tuning.TierFar:
		return lipgloss.Color(farColor.Hex())
	default:
		return lipgloss.Color("#444444")
	}
}

// Get the next note in the scale (for sharp note colors)
func getNextNote(note string) string {
	switch note {
	case "C":
		return "D"
	case "D":
		return "E"
	case "E":
		return "F"
	case "F":
		return "G"
	case "G":
		return "A"
	case "A":
		return "B"
	default:
		return "C"
	}
}

// noteBlock renders a note name in its colour. Sharps are split between the
// colours of the two neighbouring naturals.
func noteBlock(name string) string {
	if name == "" {
		return emptyStyle.Render("--")
	}
	base := string(name[0])
	if !strings.Contains(name, "#") {
		return lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color(noteColors[base])).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333333")).
			Padding(1, 3).
			Render(name)
	}

	left := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(noteColors[base])).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		BorderRight(false).
		PaddingLeft(3).
		PaddingRight(1).
		PaddingTop(1).
		PaddingBottom(1)

	right := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(noteColors[getNextNote(base)])).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		BorderLeft(false).
		PaddingLeft(1).
		PaddingRight(3).
		PaddingTop(1).
		PaddingBottom(1)

	return lipgloss.JoinHorizontal(lipgloss.Top, left.Render(base), right.Render(name[1:]))
}

// centsColor blends from the in-tune colour to the far colour.
func centsColor(cents float64) lipgloss.Color {
	t := math.Min(math.Abs(cents)/graphSpan, 1)
	return lipgloss.Color(inTuneColor.BlendLab(farColor, t).Clamped().Hex())
}

// Session is the part of the tuning session the UI drives.
type Session interface {
	Start(ctx context.Context) error
	Stop()
	IsActive() bool
	SetTarget(name string)
	SetAutoMode(enabled bool)
	Snapshot() tuning.Snapshot
	Status() tuning.Status
	Graph() []tuning.GraphPoint
	GraphInterval() time.Duration
}

// TickMsg represents a graph refresh tick
type TickMsg time.Time

// StatusMsg carries a session status update
type StatusMsg tuning.Status

// Model represents the UI state
type Model struct {
	ctx     context.Context
	session Session
	updates <-chan tuning.Status
	status  tuning.Status
	snap    tuning.Snapshot
	graph   []tuning.GraphPoint
	err     error
	width   int
	height  int
}

// NewModel creates a UI model observing session through updates.
func NewModel(ctx context.Context, session Session, updates <-chan tuning.Status) Model {
	return Model{
		ctx:     ctx,
		session: session,
		updates: updates,
		status:  session.Status(),
		snap:    session.Snapshot(),
	}
}

// Init initializes the UI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForStatus(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.session.GraphInterval(), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) waitForStatus() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-m.updates
		if !ok {
			return nil
		}
		return StatusMsg(st)
	}
}

// Update updates the UI model based on messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.graph = m.session.Graph()
		m.snap = m.session.Snapshot()
		return m, m.tick()

	case StatusMsg:
		m.status = tuning.Status(msg)
		m.snap = m.session.Snapshot()
		return m, m.waitForStatus()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		return m, tea.Quit

	case " ", "space":
		if m.session.IsActive() {
			m.session.Stop()
			m.err = nil
		} else {
			m.err = m.session.Start(m.ctx)
		}

	case "a":
		m.session.SetAutoMode(!m.session.Snapshot().AutoMode)

	case "left", "right":
		m.session.SetTarget(m.stepTarget(key == "right"))

	case "1", "2", "3", "4", "5", "6":
		notes := tuning.StandardTuning()
		m.session.SetTarget(notes[int(key[0]-'1')])
	}

	m.snap = m.session.Snapshot()
	m.status = m.session.Status()
	m.graph = m.session.Graph()
	return m, nil
}

// stepTarget moves to the neighbouring standard string.
func (m Model) stepTarget(up bool) string {
	notes := tuning.StandardTuning()
	idx := -1
	for i, n := range notes {
		if n == m.snap.Target.Note {
			idx = i
		}
	}
	switch {
	case idx < 0:
		idx = 0
	case up:
		idx = (idx + 1) % len(notes)
	default:
		idx = (idx - 1 + len(notes)) % len(notes)
	}
	return notes[idx]
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GuitarTune - String Tuner"))
	b.WriteString("\n")

	mode := "manual"
	if m.snap.AutoMode {
		mode = "auto"
	}
	state := "stopped"
	if m.snap.Active {
		state = "listening"
	}

	target := m.snap.Target.Note
	if target == "" {
		target = "?"
	}
	b.WriteString(infoStyle.Render(fmt.Sprintf("Target: %s (%s) | %s", target, mode, state)))
	b.WriteString("\n\n")

	b.WriteString(noteBlock(m.status.DetectedNote))
	b.WriteString("\n")
	if m.status.Detected {
		info := fmt.Sprintf("Frequency: %.2f Hz | Cents: %+.1f", m.status.DetectedFrequency, m.status.Cents)
		b.WriteString(lipgloss.NewStyle().Foreground(centsColor(m.status.Cents)).Render(info))
	} else if m.snap.Active {
		b.WriteString(infoStyle.Render("Listening for audio..."))
	} else {
		b.WriteString(infoStyle.Render("Press space to start"))
	}
	b.WriteString("\n\n")

	b.WriteString(renderGraph(m.graph))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("Level: %.1f dB", m.snap.DB)))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(infoStyle.Render("space start/stop | a auto | ←/→ or 1-6 string | q quit"))
	return b.String()
}

// renderGraph draws one column per point, oldest on the left.
func renderGraph(points []tuning.GraphPoint) string {
	var b strings.Builder
	for r, rowCents := range graphRows {
		b.WriteString(infoStyle.Render(fmt.Sprintf("%+4.0f ", rowCents)))
		for _, p := range points {
			b.WriteString(graphCell(p, r))
		}
		if r < len(graphRows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func graphCell(p tuning.GraphPoint, row int) string {
	if !p.HasCents {
		if graphRows[row] == 0 {
			return emptyStyle.Render("·")
		}
		return " "
	}
	if nearestRow(p.Cents) != row {
		return " "
	}
	return lipgloss.NewStyle().Foreground(tierColor(p.Tier)).Render("●")
}

// nearestRow returns the graph row closest to cents, clamped to the edges.
func nearestRow(cents float64) int {
	best := 0
	for i, rc := range graphRows {
		if math.Abs(cents-rc) < math.Abs(cents-graphRows[best]) {
			best = i
		}
	}
	return best
}
