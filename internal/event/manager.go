package event

import (
	"sync"

	"go.uber.org/zap"
)

type Listener struct {
	eventType Type
	channel   chan interface{}
}

const listenerBuffer = 16

// Manager fans events out to listeners. Each listener runs its callback on its own
// goroutine, in emission order. Emitting never blocks: a listener whose buffer is full
// misses the event.
type Manager struct {
	mu        sync.RWMutex
	listeners []*Listener
	closed    bool
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddEventListener(eventType Type, callback func(msg interface{})) {
	zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: AddListener")

	listener := &Listener{
		eventType: eventType,
		channel:   make(chan interface{}, listenerBuffer),
	}

	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()

	go func() {
		for msg := range listener.channel {
			callback(msg)
		}
	}()
}

func (m *Manager) EmitEvent(eventType Type, msg interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	for _, listener := range m.listeners {
		if listener.eventType == eventType {
			select {
			case listener.channel <- msg:
				zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: Emitting event")
			default:
				zap.L().With(zap.String("type", string(eventType))).Warn("EventManager: Listener is full, event dropped")
			}
		}
	}
}

// Close stops every listener. Events emitted afterwards are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for _, listener := range m.listeners {
		close(listener.channel)
	}
}
