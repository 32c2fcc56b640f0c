// Package stream feeds byte streams from a transport into a parser and hands
// the results to a handler.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jwoglom/midistream/pkg/handler"
	"github.com/jwoglom/midistream/pkg/midi"
	"github.com/jwoglom/midistream/pkg/parser"

	log "github.com/sirupsen/logrus"
)

const readChunkSize = 512

// Stats counts what a Decoder has seen
type Stats struct {
	Bytes        uint64
	Messages     uint64
	ChannelVoice uint64
	SystemCommon uint64
	Realtime     uint64
	SysEx        uint64
	Errors       map[string]uint64
	Resets       uint64
}

// Decoder owns a parser and serializes access to it, so transports running on
// their own goroutines can share one stream.
type Decoder struct {
	parser  *parser.Parser
	handler handler.Handler
	mutex   sync.Mutex
	stats   Stats
}

// NewDecoder creates a decoder with a SysEx buffer of sysexCapacity bytes.
// A nil handler discards everything.
func NewDecoder(sysexCapacity int, h handler.Handler) *Decoder {
	if h == nil {
		h = &handler.NoOpHandler{}
	}
	return &Decoder{
		parser:  parser.New(sysexCapacity),
		handler: h,
		stats:   Stats{Errors: make(map[string]uint64)},
	}
}

// Feed decodes data, dispatching completed messages and errors to the handler
func (d *Decoder) Feed(data []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for _, b := range data {
		d.feedLocked(b)
	}
}

// FeedByte decodes a single byte
func (d *Decoder) FeedByte(b byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.feedLocked(b)
}

func (d *Decoder) feedLocked(b byte) {
	d.stats.Bytes++

	msg, ok, err := d.parser.Parse(b)
	if err != nil {
		name := parser.ErrorName(err)
		d.stats.Errors[name]++
		log.Debugf("Rejected byte 0x%02X (%s), parser now %s", b, name, d.parser.State())
		d.handler.HandleError(fmt.Errorf("byte 0x%02X: %w", b, err))
	}
	if !ok {
		return
	}

	d.count(msg)
	if err := d.handler.HandleMessage(msg); err != nil {
		log.Debugf("Handler failed for %s: %v", msg.Kind, err)
	}
}

func (d *Decoder) count(msg midi.Message) {
	d.stats.Messages++
	switch msg.Family() {
	case midi.FamilyChannelVoice:
		d.stats.ChannelVoice++
	case midi.FamilySystemCommon:
		d.stats.SystemCommon++
	case midi.FamilyRealtime:
		d.stats.Realtime++
	case midi.FamilySysEx:
		d.stats.SysEx++
	}
}

// ReadFrom feeds everything read from r until EOF, a read error or ctx is done.
// ctx is checked between reads; closing r is the way to interrupt a blocked read.
func (d *Decoder) ReadFrom(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			log.Tracef("Read %d bytes: % X", n, buf[:n])
			d.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

// Reset discards any partial message, e.g. after a transport discontinuity
func (d *Decoder) Reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.parser.Reset()
	d.stats.Resets++
	log.Debug("Decoder reset")
}

// Pending returns true if the parser is in the middle of a message or SysEx
func (d *Decoder) Pending() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.parser.State() != parser.StateIdle
}

// Stats returns a snapshot of the decoder counters
func (d *Decoder) Stats() Stats {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	s := d.stats
	s.Errors = make(map[string]uint64, len(d.stats.Errors))
	for k, v := range d.stats.Errors {
		s.Errors[k] = v
	}
	return s
}

// GetStats returns statistics about the decoder
func (d *Decoder) GetStats() map[string]interface{} {
	s := d.Stats()

	d.mutex.Lock()
	state := d.parser.State().String()
	capacity := d.parser.Capacity()
	buffered := d.parser.Buffered()
	d.mutex.Unlock()

	return map[string]interface{}{
		"bytes":         s.Bytes,
		"messages":      s.Messages,
		"channelVoice":  s.ChannelVoice,
		"systemCommon":  s.SystemCommon,
		"realtime":      s.Realtime,
		"sysex":         s.SysEx,
		"errors":        s.Errors,
		"resets":        s.Resets,
		"state":         state,
		"sysexCapacity": capacity,
		"sysexBuffered": buffered,
	}
}
