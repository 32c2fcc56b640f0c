package blemidi

import (
	"fmt"
	"sync"
	"time"

	"github.com/jwoglom/midistream/pkg/stream"

	log "github.com/sirupsen/logrus"
)

// DefaultIdleTimeout is how long a partial message may wait for the next packet
const DefaultIdleTimeout = time.Second

// Receiver feeds the MIDI bytes of incoming packets into a decoder.
//
// Packets lost on the radio link can leave the decoder waiting for data bytes
// that never arrive. When no packet has been seen for the idle timeout the
// decoder is reset so the next packet starts clean.
type Receiver struct {
	decoder *stream.Decoder
	mutex   sync.Mutex
	timeout time.Duration

	scratch       []byte
	lastPacket    time.Time
	lastTimestamp uint16
	packets       uint64
	malformed     uint64
	timeouts      uint64

	cleanupTimer *time.Ticker
	stopCleanup  chan struct{}
	stopOnce     sync.Once
}

// NewReceiver creates a receiver feeding dec
func NewReceiver(dec *stream.Decoder, timeout time.Duration) *Receiver {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}

	r := &Receiver{
		decoder:      dec,
		timeout:      timeout,
		scratch:      make([]byte, 0, MaxPacketSize),
		lastPacket:   time.Now(),
		cleanupTimer: time.NewTicker(timeout / 2),
		stopCleanup:  make(chan struct{}),
	}

	go r.cleanupLoop()

	return r
}

// Stop stops the cleanup goroutine
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCleanup)
		r.cleanupTimer.Stop()
	})
}

func (r *Receiver) cleanupLoop() {
	for {
		select {
		case <-r.cleanupTimer.C:
			r.checkIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

// checkIdle resets the decoder if a message has been pending too long
func (r *Receiver) checkIdle() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	idle := time.Since(r.lastPacket)
	if idle <= r.timeout || !r.decoder.Pending() {
		return
	}

	log.Warnf("Dropping partial message after %v without packets", idle)
	r.decoder.Reset()
	r.timeouts++
}

// AddPacket unframes packet and feeds its MIDI bytes to the decoder
func (r *Receiver) AddPacket(packet []byte) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.packets++
	r.lastPacket = time.Now()
	r.scratch = r.scratch[:0]

	err := Unframe(packet, func(ts uint16, b byte) {
		r.lastTimestamp = ts
		r.scratch = append(r.scratch, b)
	})
	if len(r.scratch) > 0 {
		r.decoder.Feed(r.scratch)
	}
	if err != nil {
		r.malformed++
		return fmt.Errorf("failed to unframe packet: %w", err)
	}

	log.Tracef("Fed %d bytes from packet, ts=%d", len(r.scratch), r.lastTimestamp)
	return nil
}

// Reset resets the decoder, e.g. when a central connects or disconnects
func (r *Receiver) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.decoder.Reset()
	r.lastPacket = time.Now()
	log.Debug("Receiver reset")
}

// GetStats returns statistics about the receiver
func (r *Receiver) GetStats() map[string]interface{} {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return map[string]interface{}{
		"packets":       r.packets,
		"malformed":     r.malformed,
		"idleTimeouts":  r.timeouts,
		"lastTimestamp": r.lastTimestamp,
		"timeout":       r.timeout.String(),
	}
}
