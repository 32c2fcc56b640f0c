// Package monitor is a terminal UI showing a live decoded MIDI stream.
package monitor

import (
	"fmt"
	"strings"

	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/parser"
	"github.com/jwoglom/midistream/pkg/stream"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxLines      = 500
	defaultHeight = 24
	chromeHeight  = 5
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))

	familyStyles = map[midi.Family]lipgloss.Style{
		midi.FamilyChannelVoice: lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD7FF")),
		midi.FamilySystemCommon: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F")),
		midi.FamilyRealtime:     lipgloss.NewStyle().Foreground(lipgloss.Color("#87D787")),
		midi.FamilySysEx:        lipgloss.NewStyle().Foreground(lipgloss.Color("#D787FF")),
	}
)

type line struct {
	text  string
	style lipgloss.Style
}

// Model is the bubbletea model of the monitor
type Model struct {
	decoder *stream.Decoder
	handler *Handler
	source  string

	lines     []line
	errors    int
	showClock bool
	height    int
	quitting  bool
}

// NewModel creates a monitor for dec fed through h
func NewModel(dec *stream.Decoder, h *Handler, source string) Model {
	return Model{
		decoder: dec,
		handler: h,
		source:  source,
		height:  defaultHeight,
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForEvents(m.handler)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.decoder.Reset()
			m.addLine("-- decoder reset --", dimStyle)
		case "c":
			m.lines = nil
			m.errors = 0
		case "t":
			m.showClock = !m.showClock
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height

	case MessageMsg:
		if m.showClock || !isClock(msg.Message.Kind) {
			text := fmt.Sprintf("%s  %s", msg.At.Format("15:04:05.000"), msg.Message)
			m.addLine(text, familyStyles[msg.Message.Family()])
		}
		return m, ListenForEvents(m.handler)

	case ErrorMsg:
		m.errors++
		text := fmt.Sprintf("%s  %s: %v", msg.At.Format("15:04:05.000"), parser.ErrorName(msg.Err), msg.Err)
		m.addLine(text, errorStyle)
		return m, ListenForEvents(m.handler)
	}

	return m, nil
}

func (m *Model) addLine(text string, style lipgloss.Style) {
	m.lines = append(m.lines, line{text: text, style: style})
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func isClock(k midi.Kind) bool {
	return k == midi.KindTimingClock || k == midi.KindActiveSensing
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	stats := m.decoder.Stats()
	header := headerStyle.Render(fmt.Sprintf("midistream  %s  bytes:%d  messages:%d  errors:%d  dropped:%d",
		m.source, stats.Bytes, stats.Messages, m.errors, m.handler.Dropped()))

	clock := "hidden"
	if m.showClock {
		clock = "shown"
	}
	help := dimStyle.Render(fmt.Sprintf("r:reset  c:clear  t:clock (%s)  q:quit", clock))

	rows := m.height - chromeHeight
	if rows < 1 {
		rows = 1
	}
	visible := m.lines
	if len(visible) > rows {
		visible = visible[len(visible)-rows:]
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	for _, l := range visible {
		out.WriteString(l.style.Render(l.text))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	out.WriteString(help)

	return out.String()
}
