package vtmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/rwool/vtmq/pkg/engine"
)

// Manager hands out shared Queue handles by name.
type Manager struct {
	eng engine.Engine
	l   log.Logger

	mu     sync.Mutex
	queues map[string]*Queue
}

// NewManager returns a Manager over the given engine. A nil logger silences
// logging.
func NewManager(eng engine.Engine, l log.Logger) *Manager {
	if eng == nil {
		panic("nil engine")
	}
	if l == nil {
		l = log.NewNopLogger()
	}
	return &Manager{
		eng:    eng,
		l:      l,
		queues: make(map[string]*Queue),
	}
}

// GetQueue returns the handle for name, creating the queue (and the handle)
// on first use. cfg and the codec functions only apply when the handle is
// first created.
func (m *Manager) GetQueue(ctx context.Context, name string, cfg *engine.QueueConfig, ser Serializer, deser Deserializer) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[name]; ok {
		return q, nil
	}
	q, err := NewQueue(ctx, m.eng, name, cfg, ser, deser)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open queue %q", name)
	}
	_ = m.l.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Opened queue %s", name))
	m.queues[name] = q
	return q, nil
}

// DeleteQueue removes a queue, all its messages, and any cached handle.
func (m *Manager) DeleteQueue(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.eng.DeleteQueue(ctx, name); err != nil {
		return err
	}
	delete(m.queues, name)
	_ = m.l.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Deleted queue %s", name))
	return nil
}

// Queues returns the names of all registered queues.
func (m *Manager) Queues(ctx context.Context) ([]string, error) {
	return m.eng.ListQueues(ctx)
}
