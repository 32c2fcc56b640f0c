package monitor

import (
	"sync/atomic"
	"time"

	"github.com/jwoglom/midistream/pkg/midi"

	tea "github.com/charmbracelet/bubbletea"
)

const eventBufferSize = 256

// MessageMsg carries a decoded message into the program
type MessageMsg struct {
	Message midi.Message
	At      time.Time
}

// ErrorMsg carries a decode error into the program
type ErrorMsg struct {
	Err error
	At  time.Time
}

// Handler forwards decoded messages and errors to the TUI. Events are
// dropped when the program falls behind so decoding never blocks on it.
type Handler struct {
	events  chan tea.Msg
	dropped atomic.Uint64
}

// NewHandler creates a handler for the monitor program
func NewHandler() *Handler {
	return &Handler{
		events: make(chan tea.Msg, eventBufferSize),
	}
}

// HandleMessage queues a copy of msg
func (h *Handler) HandleMessage(msg midi.Message) error {
	h.push(MessageMsg{Message: msg.Clone(), At: time.Now()})
	return nil
}

// HandleError queues err
func (h *Handler) HandleError(err error) {
	h.push(ErrorMsg{Err: err, At: time.Now()})
}

func (h *Handler) push(msg tea.Msg) {
	select {
	case h.events <- msg:
	default:
		h.dropped.Add(1)
	}
}

// Dropped returns how many events did not fit the buffer
func (h *Handler) Dropped() uint64 {
	return h.dropped.Load()
}

// ListenForEvents waits for the next queued event
func ListenForEvents(h *Handler) tea.Cmd {
	return func() tea.Msg {
		return <-h.events
	}
}
