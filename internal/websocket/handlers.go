package websocket

import (
	"fmt"
	"sync"

	"github.com/luciancaetano/vowsock"
)

// handlerTable maps topics to command handlers.
type handlerTable struct {
	mu       sync.RWMutex
	handlers map[string]vowsock.Handler
}

func newHandlerTable() *handlerTable {
	return &handlerTable{handlers: make(map[string]vowsock.Handler)}
}

func (t *handlerTable) Register(topic string, handler vowsock.Handler) error {
	switch {
	case topic == "":
		return vowsock.ErrInvalidTopic
	case vowsock.IsReserved(topic):
		return fmt.Errorf("%w: %q", vowsock.ErrReservedTopic, topic)
	case handler == nil:
		return fmt.Errorf("%w for %q", vowsock.ErrNilHandler, topic)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[topic]; ok {
		return fmt.Errorf("%w: %q", vowsock.ErrDuplicateHandler, topic)
	}
	t.handlers[topic] = handler
	return nil
}

func (t *handlerTable) Get(topic string) (vowsock.Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[topic]
	return h, ok
}
