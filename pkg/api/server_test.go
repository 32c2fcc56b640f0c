package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jwoglom/midistream/pkg/handler"
	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/parser"
	"github.com/jwoglom/midistream/pkg/stream"

	"github.com/gorilla/websocket"
)

type fakeSender struct {
	mutex sync.Mutex
	sent  []midi.Message
}

func (f *fakeSender) Send(msgs ...midi.Message) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sent = append(f.sent, msgs...)
	return nil
}

func (f *fakeSender) messages() []midi.Message {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]midi.Message(nil), f.sent...)
}

func newTestServer(t *testing.T) (*Server, *stream.Decoder, *httptest.Server) {
	t.Helper()

	router := handler.NewRouter()
	dec := stream.NewDecoder(16, router)
	srv := New(dec)
	router.AddObserver(srv)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, dec, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// the server greets every client with stats
	if ev := readEvent(t, conn); ev.Type != "stats" {
		t.Fatalf("Expected initial stats event, got %+v", ev)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return ev
}

func TestWebSocketPushesMessagesAndErrors(t *testing.T) {
	_, dec, ts := newTestServer(t)
	conn := dial(t, ts)

	dec.Feed([]byte{0x93, 0x3C, 0x7F, 0xF8, 0xF4})

	ev := readEvent(t, conn)
	if ev.Type != "message" || ev.Kind != "NoteOn" || ev.Data != "933c7f" {
		t.Errorf("Unexpected message event: %+v", ev)
	}
	if ev.Channel == nil || *ev.Channel != 3 {
		t.Errorf("Expected channel 3, got %v", ev.Channel)
	}

	// the timing clock is filtered, so the next event is the error
	ev = readEvent(t, conn)
	if ev.Type != "error" || ev.Kind != "InvalidStatusByte" {
		t.Errorf("Unexpected error event: %+v", ev)
	}
}

func TestWebSocketIncludeClock(t *testing.T) {
	srv, dec, ts := newTestServer(t)
	srv.SetIncludeClock(true)
	conn := dial(t, ts)

	dec.FeedByte(0xF8)

	ev := readEvent(t, conn)
	if ev.Kind != "TimingClock" || ev.Channel != nil {
		t.Errorf("Unexpected event: %+v", ev)
	}
}

func TestWebSocketCommands(t *testing.T) {
	_, dec, ts := newTestServer(t)
	conn := dial(t, ts)

	dec.Feed([]byte{0x90, 0x3C})
	if !dec.Pending() {
		t.Fatal("Expected pending message")
	}

	if err := conn.WriteJSON(Command{Command: "reset"}); err != nil {
		t.Fatal(err)
	}
	ev := readEvent(t, conn)
	if ev.Type != "stats" || ev.Stats["state"] != "Idle" {
		t.Errorf("Expected idle stats after reset, got %+v", ev)
	}
	if dec.Pending() {
		t.Error("Expected decoder reset")
	}

	if err := conn.WriteJSON(Command{Command: "getStats"}); err != nil {
		t.Fatal(err)
	}
	ev = readEvent(t, conn)
	// JSON numbers decode as float64
	if ev.Type != "stats" || ev.Stats["bytes"] != float64(2) || ev.Stats["clients"] != float64(1) {
		t.Errorf("Unexpected stats: %+v", ev)
	}

	if err := conn.WriteJSON(Command{Command: "bogus"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != "error" {
		t.Errorf("Expected error for unknown command, got %+v", ev)
	}
}

func TestWebSocketHideAndShow(t *testing.T) {
	_, dec, ts := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteJSON(Command{Command: "hide", Data: "NoteOn"}); err != nil {
		t.Fatal(err)
	}
	ev := readEvent(t, conn)
	hidden, _ := ev.Stats["hidden"].([]interface{})
	if ev.Type != "stats" || len(hidden) != 3 || hidden[0] != "NoteOn" {
		t.Errorf("Expected NoteOn hidden along with clock kinds, got %+v", ev)
	}

	dec.Feed([]byte{0x90, 0x3C, 0x7F, 0xC2, 0x05})
	if ev := readEvent(t, conn); ev.Kind != "ProgramChange" {
		t.Errorf("Expected NoteOn to be skipped, got %+v", ev)
	}

	if err := conn.WriteJSON(Command{Command: "show", Data: "NoteOn"}); err != nil {
		t.Fatal(err)
	}
	readEvent(t, conn)
	dec.Feed([]byte{0x90, 0x3C, 0x7F})
	if ev := readEvent(t, conn); ev.Kind != "NoteOn" {
		t.Errorf("Expected NoteOn after show, got %+v", ev)
	}

	if err := conn.WriteJSON(Command{Command: "hide", Data: "Bogus"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != "error" {
		t.Errorf("Expected error for unknown kind, got %+v", ev)
	}
}

func TestWebSocketSendCommand(t *testing.T) {
	srv, _, ts := newTestServer(t)
	conn := dial(t, ts)

	// no sender configured
	if err := conn.WriteJSON(Command{Command: "send", Data: "903c7f"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != "error" {
		t.Errorf("Expected error without sender, got %+v", ev)
	}

	sender := &fakeSender{}
	srv.SetSender(sender)

	if err := conn.WriteJSON(Command{Command: "send", Data: "90 3c 7f 3c 00"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != "sent" {
		t.Errorf("Expected sent event, got %+v", ev)
	}
	sent := sender.messages()
	if len(sent) != 2 || !sent[1].Equal(midi.NewNoteOn(0, 0x3C, 0)) {
		t.Errorf("Unexpected sent messages: %v", sent)
	}
}

func TestDecodeHex(t *testing.T) {
	msgs, err := decodeHex("F0 7E 7F 06 01 F7 C5 10")
	if err != nil {
		t.Fatalf("decodeHex failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Kind != midi.KindSystemExclusive || !msgs[1].Equal(midi.NewProgramChange(5, 0x10)) {
		t.Errorf("Unexpected messages: %v", msgs)
	}

	if _, err := decodeHex("zz"); err == nil {
		t.Error("Expected error for invalid hex")
	}
	if _, err := decodeHex("3C"); !errors.Is(err, parser.ErrUnexpectedDataByte) {
		t.Errorf("Expected ErrUnexpectedDataByte, got %v", err)
	}
	if _, err := decodeHex("90 3C"); err == nil {
		t.Error("Expected error for incomplete message")
	}
}

func TestStatsAPI(t *testing.T) {
	_, dec, ts := newTestServer(t)
	dec.Feed([]byte{0xFA, 0xFC})

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["realtime"] != float64(2) {
		t.Errorf("Expected 2 realtime messages, got %v", stats["realtime"])
	}

	resp, err = http.Post(ts.URL+"/api/stats", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestResetAPI(t *testing.T) {
	_, dec, ts := newTestServer(t)
	dec.Feed([]byte{0xF0, 0x01})

	resp, err := http.Post(ts.URL+"/api/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if dec.Pending() {
		t.Error("Expected decoder reset")
	}
	if dec.Stats().Resets != 1 {
		t.Errorf("Expected 1 reset, got %d", dec.Stats().Resets)
	}
}
