// Package source reads raw MIDI bytes from a transport and feeds them to a
// stream decoder.
package source

import (
	"context"
	"fmt"

	"github.com/jwoglom/midistream/pkg/config"
	"github.com/jwoglom/midistream/pkg/stream"
)

// Source delivers bytes to a decoder until ctx is done or the transport ends
type Source interface {
	Run(ctx context.Context, dec *stream.Decoder) error
	String() string
}

// New selects the source named by cfg
func New(cfg *config.Config) (Source, error) {
	switch cfg.Source {
	case config.SourceStdin:
		return NewReaderSource("-"), nil
	case config.SourceFile:
		return NewReaderSource(cfg.Input), nil
	case config.SourcePort:
		return NewPortSource(cfg.Input), nil
	case config.SourceAmidi:
		return NewAmidiSource(cfg.Input), nil
	case config.SourceBLE:
		return NewBLESource(cfg.Input, cfg.IdleTimeout), nil
	default:
		return nil, fmt.Errorf("unknown source: %s", cfg.Source)
	}
}
