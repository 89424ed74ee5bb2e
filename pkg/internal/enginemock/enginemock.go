// Package enginemock provides an in-memory implementation of the queue
// engine.
//
// Intended for testing only. It follows the same visibility protocol as the
// Redis adapter, with one addition: the clock can be advanced manually, so
// tests can cross a visibility window without sleeping.
package enginemock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rwool/vtmq/pkg/engine"
	"github.com/rwool/vtmq/pkg/engine/msgid"
)

// Ensure Mock implements engine.Engine.
var _ engine.Engine = (*Mock)(nil)

// New returns a Mock using the default queue configuration for implicitly
// created queues.
func New() *Mock {
	return NewWithDefaults(engine.DefaultConfig())
}

// NewWithDefaults returns a Mock with the given implicit-creation defaults.
func NewWithDefaults(defaults engine.QueueConfig) *Mock {
	return &Mock{
		defaults: defaults,
		queues:   make(map[string]*queueState),
	}
}

// Mock is an in-memory engine.Engine.
type Mock struct {
	mu       sync.Mutex
	defaults engine.QueueConfig
	queues   map[string]*queueState
	offset   time.Duration
}

type entry struct {
	id    string
	score int64
}

type messageState struct {
	payload  []byte
	sent     int64
	rc       int64
	fr       int64
	metadata map[string]interface{}
}

type queueState struct {
	cfg       engine.QueueConfig
	created   int64
	modified  int64
	totalSent int64
	totalRecv int64
	entries   []entry
	messages  map[string]*messageState
}

// Advance moves the mock's clock forward, making hidden messages eligible
// without waiting in real time.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.offset += d
	m.mu.Unlock()
}

// nowMS must be called with the lock held.
func (m *Mock) nowMS() int64 {
	return time.Now().Add(m.offset).UnixNano() / int64(time.Millisecond)
}

// ensure is the lock-held equivalent of the Redis scripts' ensure-queue
// prologue.
func (m *Mock) ensure(name string, cfg *engine.QueueConfig) (*queueState, bool) {
	if q, ok := m.queues[name]; ok {
		return q, false
	}
	effective := m.defaults
	if cfg != nil {
		effective = *cfg
	}
	now := m.nowMS()
	q := &queueState{
		cfg:      effective,
		created:  now,
		modified: now,
		messages: make(map[string]*messageState),
	}
	m.queues[name] = q
	return q, true
}

func (q *queueState) sortEntries() {
	sort.Slice(q.entries, func(i, j int) bool {
		if q.entries[i].score != q.entries[j].score {
			return q.entries[i].score < q.entries[j].score
		}
		return q.entries[i].id < q.entries[j].id
	})
}

// eligible returns the index of the earliest entry at or below now, or -1.
func (q *queueState) eligible(now int64) int {
	if len(q.entries) == 0 || q.entries[0].score > now {
		return -1
	}
	return 0
}

// CreateQueue registers a queue, reporting whether it was created.
func (m *Mock) CreateQueue(_ context.Context, name string, cfg *engine.QueueConfig) (bool, error) {
	if err := engine.ValidateQueueName(name); err != nil {
		return false, err
	}
	if cfg != nil {
		if cfg.VisibilityTimeout < 0 || cfg.InitialDelay < 0 || cfg.MaxSize < 0 {
			return false, errors.New("queue configuration values cannot be negative")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, created := m.ensure(name, cfg)
	return created, nil
}

// DeleteQueue removes a queue and all its messages.
func (m *Mock) DeleteQueue(_ context.Context, name string) error {
	if err := engine.ValidateQueueName(name); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.queues, name)
	m.mu.Unlock()
	return nil
}

// ListQueues returns the names of all registered queues.
func (m *Mock) ListQueues(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// QueueInfo returns the queue's configuration, counters, and message counts.
func (m *Mock) QueueInfo(_ context.Context, name string) (engine.QueueInfo, error) {
	if err := engine.ValidateQueueName(name); err != nil {
		return engine.QueueInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, _ := m.ensure(name, nil)
	now := m.nowMS()
	var hidden int64
	for _, e := range q.entries {
		if e.score > now {
			hidden++
		}
	}
	return engine.QueueInfo{
		Name:           name,
		Config:         q.cfg,
		TotalSent:      q.totalSent,
		TotalReceived:  q.totalRecv,
		CreatedAt:      msTime(q.created),
		ModifiedAt:     msTime(q.modified),
		Messages:       int64(len(q.entries)),
		HiddenMessages: hidden,
	}, nil
}

func (m *Mock) setConfig(name string, set func(*engine.QueueConfig)) error {
	if err := engine.ValidateQueueName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, _ := m.ensure(name, nil)
	set(&q.cfg)
	q.modified = m.nowMS()
	return nil
}

// SetVisibilityTimeout overwrites the queue's visibility timeout.
func (m *Mock) SetVisibilityTimeout(_ context.Context, name string, seconds int64) error {
	if seconds < 0 {
		return errors.Errorf("vt cannot be negative: %d", seconds)
	}
	return m.setConfig(name, func(c *engine.QueueConfig) { c.VisibilityTimeout = seconds })
}

// SetInitialDelay overwrites the queue's initial delivery delay.
func (m *Mock) SetInitialDelay(_ context.Context, name string, seconds int64) error {
	if seconds < 0 {
		return errors.Errorf("delay cannot be negative: %d", seconds)
	}
	return m.setConfig(name, func(c *engine.QueueConfig) { c.InitialDelay = seconds })
}

// SetMaxSize overwrites the queue's advisory maximum message size.
func (m *Mock) SetMaxSize(_ context.Context, name string, bytes int64) error {
	if bytes < 0 {
		return errors.Errorf("maxsize cannot be negative: %d", bytes)
	}
	return m.setConfig(name, func(c *engine.QueueConfig) { c.MaxSize = bytes })
}

// Push enqueues a payload and returns its message id.
func (m *Mock) Push(_ context.Context, name string, payload []byte, opts *engine.PushOptions) (string, error) {
	if err := engine.ValidateQueueName(name); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.push(name, payload, opts)
}

// push must be called with the lock held.
func (m *Mock) push(name string, payload []byte, opts *engine.PushOptions) (string, error) {
	q, _ := m.ensure(name, nil)
	now := m.nowMS()
	delay := q.cfg.InitialDelay
	var metadata map[string]interface{}
	if opts != nil {
		if opts.DelaySeconds != nil {
			if *opts.DelaySeconds < 0 {
				return "", errors.Errorf("delay cannot be negative: %d", *opts.DelaySeconds)
			}
			delay = *opts.DelaySeconds
		}
		metadata = opts.Metadata
	}
	id, err := msgid.Generate(now * 1000)
	if err != nil {
		return "", err
	}
	q.entries = append(q.entries, entry{id: id, score: now + delay*1000})
	q.sortEntries()
	q.messages[id] = &messageState{
		payload:  append([]byte(nil), payload...),
		sent:     now,
		metadata: metadata,
	}
	q.totalSent++
	return id, nil
}

// PushMany enqueues several payloads sharing one set of options.
func (m *Mock) PushMany(_ context.Context, name string, payloads [][]byte, opts *engine.PushOptions) ([]string, error) {
	if err := engine.ValidateQueueName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		id, err := m.push(name, p, opts)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *queueState) message(id string, rc, fr int64) *engine.Message {
	ms := q.messages[id]
	return &engine.Message{
		ID:             id,
		Payload:        append([]byte(nil), ms.payload...),
		Sent:           msTime(ms.sent),
		ReceiveCount:   rc,
		FirstRetrieved: msTime(fr),
		Metadata:       ms.metadata,
	}
}

// Peek returns the next eligible message without side effects.
func (m *Mock) Peek(_ context.Context, name string) (*engine.Message, error) {
	if err := engine.ValidateQueueName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, _ := m.ensure(name, nil)
	i := q.eligible(m.nowMS())
	if i < 0 {
		return nil, nil
	}
	ms := q.messages[q.entries[i].id]
	return q.message(q.entries[i].id, ms.rc, ms.fr), nil
}

// Get returns the next eligible message and hides it for the visibility
// timeout.
func (m *Mock) Get(_ context.Context, name string, opts *engine.GetOptions) (*engine.Message, error) {
	if err := engine.ValidateQueueName(name); err != nil {
		return nil, err
	}
	if opts != nil && opts.VisibilityTimeoutSeconds != nil && *opts.VisibilityTimeoutSeconds < 0 {
		return nil, errors.Errorf("visibility timeout cannot be negative: %d", *opts.VisibilityTimeoutSeconds)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, _ := m.ensure(name, nil)
	now := m.nowMS()
	i := q.eligible(now)
	if i < 0 {
		return nil, nil
	}
	id := q.entries[i].id
	vt := q.cfg.VisibilityTimeout
	if opts != nil && opts.VisibilityTimeoutSeconds != nil {
		vt = *opts.VisibilityTimeoutSeconds
	}
	// Relative rescore, matching the Redis script: the increment applies to
	// the entry's current score, not to now.
	q.entries[i].score += vt * 1000
	q.sortEntries()
	q.totalRecv++
	ms := q.messages[id]
	ms.rc++
	if ms.rc == 1 {
		ms.fr = now
	}
	return q.message(id, ms.rc, ms.fr), nil
}

// Pop returns the next eligible message and deletes it atomically.
func (m *Mock) Pop(_ context.Context, name string) (*engine.Message, error) {
	if err := engine.ValidateQueueName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, _ := m.ensure(name, nil)
	now := m.nowMS()
	i := q.eligible(now)
	if i < 0 {
		return nil, nil
	}
	id := q.entries[i].id
	q.totalRecv++
	ms := q.messages[id]
	rc := ms.rc + 1
	fr := ms.fr
	if fr == 0 {
		fr = now
	}
	out := q.message(id, rc, fr)
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	delete(q.messages, id)
	return out, nil
}

// Delete removes a message. Deleting an absent id is a no-op.
func (m *Mock) Delete(_ context.Context, name, id string) error {
	if err := engine.ValidateQueueName(name); err != nil {
		return err
	}
	if id == "" {
		return errors.New("message id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, _ := m.ensure(name, nil)
	for i, e := range q.entries {
		if e.id == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.messages, id)
	return nil
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
