//nolint:revive // api is a standard package name for API servers
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/parser"
	"github.com/jwoglom/midistream/pkg/stream"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Server provides a WebSocket API for monitoring a decoded MIDI stream
type Server struct {
	decoder *stream.Decoder
	sender  Sender
	mux     *http.ServeMux

	conns map[*websocket.Conn]bool
	mtx   sync.Mutex

	// kinds not pushed to clients
	hidden map[midi.Kind]bool
}

// Event is pushed to websocket clients
type Event struct {
	Type    string                 `json:"type"`
	Kind    string                 `json:"kind,omitempty"`
	Channel *uint8                 `json:"channel,omitempty"`
	Data    string                 `json:"data,omitempty"`
	Text    string                 `json:"text,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Stats   map[string]interface{} `json:"stats,omitempty"`
}

// Sender transmits messages back over the source transport
type Sender interface {
	Send(msgs ...midi.Message) error
}

// Command is sent by websocket clients
type Command struct {
	Command string `json:"command"`
	Data    string `json:"data,omitempty"`
}

// New creates a new API server for dec
func New(dec *stream.Decoder) *Server {
	s := &Server{
		decoder: dec,
		conns:   make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
		hidden:  make(map[midi.Kind]bool),
	}
	s.SetIncludeClock(false)
	s.setupRoutes()
	return s
}

// SetSender sets where the send command transmits messages
func (s *Server) SetSender(sender Sender) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.sender = sender
}

// SetIncludeClock enables pushing timing clock and active sensing messages
func (s *Server) SetIncludeClock(include bool) {
	s.SetHidden(midi.KindTimingClock, !include)
	s.SetHidden(midi.KindActiveSensing, !include)
}

// SetHidden stops or resumes pushing messages of kind
func (s *Server) SetHidden(kind midi.Kind, hidden bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if hidden {
		s.hidden[kind] = true
	} else {
		delete(s.hidden, kind)
	}
}

func (s *Server) hiddenKinds() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	kinds := make([]midi.Kind, 0, len(s.hidden))
	for k := range s.hidden {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP/WebSocket server
func (s *Server) Start(addr string) error {
	log.Infof("MIDI monitor API listening on %s", addr)
	return http.ListenAndServe(addr, s.mux)
}

// HandleMessage pushes a decoded message to websocket clients
func (s *Server) HandleMessage(msg midi.Message) error {
	s.mtx.Lock()
	hidden := s.hidden[msg.Kind]
	s.mtx.Unlock()
	if hidden {
		return nil
	}

	event := Event{
		Type: "message",
		Kind: msg.Kind.String(),
		Data: hex.EncodeToString(msg.Bytes()),
		Text: msg.String(),
	}
	if msg.Family() == midi.FamilyChannelVoice {
		channel := msg.Channel
		event.Channel = &channel
	}

	s.SendEvent(event)
	return nil
}

// HandleError pushes a decode error to websocket clients
func (s *Server) HandleError(err error) {
	s.SendEvent(Event{
		Type:  "error",
		Kind:  parser.ErrorName(err),
		Error: err.Error(),
	})
}

// SendEvent sends an event to all connected websocket clients
func (s *Server) SendEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal event: %v", err)
		return
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Errorf("Failed to send websocket message: %v", err)
		}
	}
}

func (s *Server) sendTo(conn *websocket.Conn, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal event: %v", err)
		return
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Errorf("Failed to send websocket message: %v", err)
	}
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if _, err := fmt.Fprintf(w, "MIDI Stream Monitor - Connect via WebSocket at /ws\n\nAPI:\n  GET    /api/stats\n  POST   /api/reset\n"); err != nil {
			log.Warnf("Failed to write response: %v", err)
		}
	})
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/api/stats", s.handleStatsAPI)
	s.mux.HandleFunc("/api/reset", s.handleResetAPI)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Infof("WebSocket connection from: %s", r.RemoteAddr)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mtx.Lock()
	s.conns[ws] = true
	s.mtx.Unlock()

	// Send initial state
	s.sendTo(ws, s.statsEvent())

	// Listen for messages
	s.reader(ws)
}

func (s *Server) stats() map[string]interface{} {
	stats := s.decoder.GetStats()

	s.mtx.Lock()
	stats["clients"] = len(s.conns)
	s.mtx.Unlock()
	stats["hidden"] = s.hiddenKinds()

	return stats
}

func (s *Server) statsEvent() Event {
	return Event{Type: "stats", Stats: s.stats()}
}

func (s *Server) reader(conn *websocket.Conn) {
	defer func() {
		s.mtx.Lock()
		delete(s.conns, conn)
		s.mtx.Unlock()
		if err := conn.Close(); err != nil {
			log.Debugf("Error closing websocket: %v", err)
		}
	}()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket read error: %v", err)
			return
		}
		log.Debugf("Received WebSocket message: %s", string(p))
		s.handleCommand(conn, p)
	}
}

func (s *Server) handleCommand(conn *websocket.Conn, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Errorf("Failed to parse command: %v", err)
		s.sendTo(conn, Event{Type: "error", Error: fmt.Sprintf("invalid command: %v", err)})
		return
	}

	switch cmd.Command {
	case "getStats":
		s.sendTo(conn, s.statsEvent())
	case "reset":
		s.decoder.Reset()
		s.sendTo(conn, s.statsEvent())
	case "send":
		if err := s.handleSendCommand(cmd.Data); err != nil {
			log.Errorf("Send command failed: %v", err)
			s.sendTo(conn, Event{Type: "error", Error: err.Error()})
			return
		}
		s.sendTo(conn, Event{Type: "sent", Data: cmd.Data})
	case "hide", "show":
		kind, ok := midi.ParseKind(cmd.Data)
		if !ok {
			s.sendTo(conn, Event{Type: "error", Error: fmt.Sprintf("unknown message kind: %s", cmd.Data)})
			return
		}
		s.SetHidden(kind, cmd.Command == "hide")
		s.sendTo(conn, s.statsEvent())
	default:
		log.Errorf("Unknown command: %s", cmd.Command)
		s.sendTo(conn, Event{Type: "error", Error: fmt.Sprintf("unknown command: %s", cmd.Command)})
	}
}

// handleSendCommand decodes hex bytes into messages and transmits them
func (s *Server) handleSendCommand(dataHex string) error {
	s.mtx.Lock()
	sender := s.sender
	s.mtx.Unlock()

	if sender == nil {
		return fmt.Errorf("source cannot send messages")
	}

	msgs, err := decodeHex(dataHex)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no complete messages in %q", dataHex)
	}

	return sender.Send(msgs...)
}

// decodeHex parses hex bytes with a fresh parser. Any decode error rejects
// the whole command.
func decodeHex(dataHex string) ([]midi.Message, error) {
	data, err := hex.DecodeString(strings.ReplaceAll(dataHex, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}

	p := parser.New(parser.DefaultSysExCapacity)
	var msgs []midi.Message
	for _, b := range data {
		msg, ok, err := p.Parse(b)
		if err != nil {
			return nil, fmt.Errorf("byte 0x%02X: %w", b, err)
		}
		if ok {
			msgs = append(msgs, msg.Clone())
		}
	}
	if p.State() != parser.StateIdle {
		return nil, fmt.Errorf("incomplete message at end of %q", dataHex)
	}
	return msgs, nil
}

// handleStatsAPI returns decoder statistics
func (s *Server) handleStatsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats()); err != nil {
		log.Errorf("Failed to encode stats: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleResetAPI resets the decoder
func (s *Server) handleResetAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.decoder.Reset()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"message": "Decoder reset",
	}); err != nil {
		log.Errorf("Failed to encode reset response: %v", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
