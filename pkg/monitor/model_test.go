package monitor

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/parser"
	"github.com/jwoglom/midistream/pkg/stream"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func TestHandlerQueuesEvents(t *testing.T) {
	h := NewHandler()

	payload := []byte{1, 2}
	if err := h.HandleMessage(midi.NewSysEx(payload)); err != nil {
		t.Fatal(err)
	}
	payload[0] = 9
	h.HandleError(parser.ErrInvalidStatusByte)

	msg := ListenForEvents(h)()
	mm, ok := msg.(MessageMsg)
	if !ok {
		t.Fatalf("Expected MessageMsg, got %T", msg)
	}
	if mm.Message.Payload[0] != 1 {
		t.Error("Expected queued message to own its payload")
	}

	if _, ok := ListenForEvents(h)().(ErrorMsg); !ok {
		t.Error("Expected ErrorMsg")
	}
}

func TestHandlerDropsWhenFull(t *testing.T) {
	h := NewHandler()
	for i := 0; i < eventBufferSize+10; i++ {
		_ = h.HandleMessage(midi.NewRealtime(midi.KindStart))
	}
	if h.Dropped() != 10 {
		t.Errorf("Expected 10 dropped events, got %d", h.Dropped())
	}
}

func TestModelShowsMessages(t *testing.T) {
	dec := stream.NewDecoder(16, nil)
	m := NewModel(dec, NewHandler(), "stdin")

	m, cmd := update(t, m, MessageMsg{Message: midi.NewNoteOn(2, 60, 90), At: time.Now()})
	if cmd == nil {
		t.Error("Expected command listening for the next event")
	}
	m, _ = update(t, m, MessageMsg{Message: midi.NewRealtime(midi.KindTimingClock), At: time.Now()})
	m, _ = update(t, m, ErrorMsg{Err: fmt.Errorf("byte 0x3C: %w", parser.ErrUnexpectedDataByte), At: time.Now()})

	if len(m.lines) != 2 {
		t.Fatalf("Expected 2 lines with the clock hidden, got %d", len(m.lines))
	}
	if m.errors != 1 {
		t.Errorf("Expected 1 error, got %d", m.errors)
	}

	view := m.View()
	for _, want := range []string{"NoteOn channel=2 key=60 velocity=90", "UnexpectedDataByte", "stdin"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "TimingClock") {
		t.Error("Expected timing clock to be hidden")
	}
}

func TestModelKeys(t *testing.T) {
	dec := stream.NewDecoder(16, nil)
	dec.Feed([]byte{0x90, 60})
	m := NewModel(dec, NewHandler(), "test")

	m, _ = update(t, m, key("t"))
	m, _ = update(t, m, MessageMsg{Message: midi.NewRealtime(midi.KindTimingClock), At: time.Now()})
	if len(m.lines) != 1 {
		t.Errorf("Expected clock line after toggling, got %d lines", len(m.lines))
	}

	m, _ = update(t, m, key("r"))
	if dec.Pending() {
		t.Error("Expected r to reset the decoder")
	}

	m, _ = update(t, m, key("c"))
	if len(m.lines) != 0 || m.errors != 0 {
		t.Errorf("Expected c to clear, got %d lines and %d errors", len(m.lines), m.errors)
	}

	m, cmd := update(t, m, key("q"))
	if cmd == nil || !m.quitting {
		t.Error("Expected q to quit")
	}
	if m.View() != "" {
		t.Error("Expected empty view after quitting")
	}
}

func TestModelScrollsToHeight(t *testing.T) {
	m := NewModel(stream.NewDecoder(0, nil), NewHandler(), "test")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: chromeHeight + 3})

	for i := 0; i < 10; i++ {
		m, _ = update(t, m, MessageMsg{Message: midi.NewProgramChange(0, uint8(i)), At: time.Now()})
	}

	view := m.View()
	if strings.Contains(view, "program=6") || !strings.Contains(view, "program=9") {
		t.Errorf("Expected only the last 3 lines:\n%s", view)
	}
}
