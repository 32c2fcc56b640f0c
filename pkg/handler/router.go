package handler

import (
	"fmt"
	"sync"

	"github.com/jwoglom/midistream/pkg/midi"

	log "github.com/sirupsen/logrus"
)

// Router routes messages to handlers registered for their kind, and copies
// every message and error to its observers
type Router struct {
	handlers  map[midi.Kind]Handler
	observers []Handler
	mutex     sync.RWMutex

	// Default handler for kinds without a registered handler
	defaultHandler Handler
}

// NewRouter creates a new message router
func NewRouter() *Router {
	return &Router{
		handlers: make(map[midi.Kind]Handler),
	}
}

// RegisterHandler registers a handler for one message kind
func (r *Router) RegisterHandler(kind midi.Kind, handler Handler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.handlers[kind] = handler
	log.Debugf("Registered handler for %s", kind)
}

// RegisterFamily registers a handler for every kind of a family
func (r *Router) RegisterFamily(family midi.Family, handler Handler) {
	for k := midi.KindNone + 1; k.Family() != midi.FamilyNone; k++ {
		if k.Family() == family {
			r.RegisterHandler(k, handler)
		}
	}
}

// SetDefaultHandler sets the handler for kinds without a registered handler
func (r *Router) SetDefaultHandler(handler Handler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.defaultHandler = handler
}

// AddObserver adds a handler that sees every message and error
func (r *Router) AddObserver(handler Handler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.observers = append(r.observers, handler)
}

// RouteMessage routes a message to the appropriate handler
func (r *Router) RouteMessage(msg midi.Message) error {
	r.mutex.RLock()
	handler, exists := r.handlers[msg.Kind]
	if !exists {
		handler = r.defaultHandler
	}
	observers := r.observers
	r.mutex.RUnlock()

	for _, o := range observers {
		if err := o.HandleMessage(msg); err != nil {
			log.Errorf("Observer error for %s: %v", msg.Kind, err)
		}
	}

	if handler == nil {
		log.Tracef("No handler registered for %s", msg.Kind)
		return nil
	}

	if err := handler.HandleMessage(msg); err != nil {
		log.Errorf("Handler error for %s: %v", msg.Kind, err)
		return fmt.Errorf("handler error: %w", err)
	}
	return nil
}

// HandleMessage implements Handler
func (r *Router) HandleMessage(msg midi.Message) error {
	return r.RouteMessage(msg)
}

// HandleError passes err to the observers and the default handler
func (r *Router) HandleError(err error) {
	r.mutex.RLock()
	observers := r.observers
	def := r.defaultHandler
	r.mutex.RUnlock()

	for _, o := range observers {
		o.HandleError(err)
	}
	if def != nil {
		def.HandleError(err)
	}
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return map[string]interface{}{
		"registeredHandlers": len(r.handlers),
		"observers":          len(r.observers),
		"hasDefault":         r.defaultHandler != nil,
	}
}
