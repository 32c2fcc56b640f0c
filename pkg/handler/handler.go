package handler

import (
	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/parser"

	log "github.com/sirupsen/logrus"
)

// Handler consumes decoded messages and decode errors.
//
// HandleMessage is called synchronously from the decoding goroutine. A SysEx
// payload is only valid for the duration of the call; handlers that keep a
// message must Clone it.
type Handler interface {
	// HandleMessage processes a decoded message
	HandleMessage(msg midi.Message) error

	// HandleError is told about every byte the parser rejected
	HandleError(err error)
}

// Func adapts a plain function to Handler; errors are ignored
type Func func(msg midi.Message) error

// HandleMessage calls f
func (f Func) HandleMessage(msg midi.Message) error {
	return f(msg)
}

// HandleError is a no-op
func (f Func) HandleError(err error) {}

// NoOpHandler is a no-op implementation of Handler
type NoOpHandler struct{}

// HandleMessage is a no-op implementation
func (n *NoOpHandler) HandleMessage(msg midi.Message) error {
	return nil
}

// HandleError is a no-op implementation
func (n *NoOpHandler) HandleError(err error) {}

// LogHandler writes messages to logrus. Timing clock and active sensing are
// logged at trace level since they arrive many times a second.
type LogHandler struct{}

// NewLogHandler creates a log handler
func NewLogHandler() *LogHandler {
	return &LogHandler{}
}

// HandleMessage logs msg
func (l *LogHandler) HandleMessage(msg midi.Message) error {
	switch msg.Kind {
	case midi.KindTimingClock, midi.KindActiveSensing:
		log.Trace(msg)
	default:
		log.Info(msg)
	}
	return nil
}

// HandleError logs err
func (l *LogHandler) HandleError(err error) {
	log.Warnf("Decode error (%s): %v", parser.ErrorName(err), err)
}
