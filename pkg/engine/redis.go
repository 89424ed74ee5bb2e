package engine

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/rwool/vtmq/pkg/engine/msgid"
)

// queueRegistryKey is the set holding all registered queue names.
const queueRegistryKey = "QUEUES"

// MaxQueueNameLength is the maximum number of characters in a queue name.
const MaxQueueNameLength = 160

var queueNameRE = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateQueueName reports whether name is usable as a queue name: non-empty,
// at most MaxQueueNameLength characters, drawn from [A-Za-z0-9._-].
func ValidateQueueName(name string) error {
	switch {
	case name == "":
		return errors.New("queue name cannot be empty")
	case len(name) > MaxQueueNameLength:
		return errors.Errorf("queue name cannot be longer than %d characters", MaxQueueNameLength)
	case !queueNameRE.MatchString(name):
		return errors.Errorf("queue name %q contains invalid characters", name)
	}
	return nil
}

// Ensure RedisAdapter implements Engine.
var _ Engine = (*RedisAdapter)(nil)

// NewRedisAdapter creates an Engine backed by a Redis client.
//
// defaults is the configuration applied to queues created implicitly by any
// operation that references an unknown queue name.
func NewRedisAdapter(c *redis.Client, defaults QueueConfig) *RedisAdapter {
	if c == nil {
		panic("nil engine client")
	}
	return &RedisAdapter{c: c, defaults: defaults}
}

// RedisAdapter implements the queue engine over Redis. Each operation runs as
// one server-side script; Redis's single-threaded script execution provides
// the required atomicity and its TIME command is the single clock source.
type RedisAdapter struct {
	c        *redis.Client
	defaults QueueConfig
}

func (r *RedisAdapter) keys(name string) []string {
	return []string{name, name + ":Q", queueRegistryKey}
}

// args prepends the default configuration (consumed by the ensure-queue
// prologue of every script) to the operation arguments.
func (r *RedisAdapter) args(extra ...interface{}) []interface{} {
	out := make([]interface{}, 0, 3+len(extra))
	out = append(out, r.defaults.VisibilityTimeout, r.defaults.InitialDelay, r.defaults.MaxSize)
	return append(out, extra...)
}

func validateConfig(cfg QueueConfig) error {
	if cfg.VisibilityTimeout < 0 {
		return errors.Errorf("visibility timeout cannot be negative: %d", cfg.VisibilityTimeout)
	}
	if cfg.InitialDelay < 0 {
		return errors.Errorf("initial delay cannot be negative: %d", cfg.InitialDelay)
	}
	if cfg.MaxSize < 0 {
		return errors.Errorf("max size cannot be negative: %d", cfg.MaxSize)
	}
	return nil
}

// ServerTime returns the backing store's clock reading. Tests use this to
// avoid comparing store timestamps against a skewed local clock.
func (r *RedisAdapter) ServerTime(ctx context.Context) (time.Time, error) {
	t, err := r.c.WithContext(ctx).Time().Result()
	return t, errors.Wrap(err, "error reading Redis server time")
}

// CreateQueue registers a queue, reporting whether it was created.
func (r *RedisAdapter) CreateQueue(ctx context.Context, name string, cfg *QueueConfig) (bool, error) {
	if err := ValidateQueueName(name); err != nil {
		return false, err
	}
	effective := r.defaults
	if cfg != nil {
		effective = *cfg
	}
	if err := validateConfig(effective); err != nil {
		return false, err
	}
	client := r.c.WithContext(ctx)
	created, err := createQueueScript.Run(client, r.keys(name),
		effective.VisibilityTimeout, effective.InitialDelay, effective.MaxSize).Result()
	if err != nil {
		return false, errors.Wrapf(err, "error creating queue %q", name)
	}
	n, ok := created.(int64)
	if !ok {
		return false, errors.Errorf("unexpected create reply %T for queue %q", created, name)
	}
	return n == 1, nil
}

// DeleteQueue removes a queue, its index, and all its messages.
func (r *RedisAdapter) DeleteQueue(ctx context.Context, name string) error {
	if err := ValidateQueueName(name); err != nil {
		return err
	}
	client := r.c.WithContext(ctx)
	err := deleteQueueScript.Run(client, r.keys(name), r.args()...).Err()
	return errors.Wrapf(err, "error deleting queue %q", name)
}

// ListQueues returns the names of all registered queues, sorted.
func (r *RedisAdapter) ListQueues(ctx context.Context) ([]string, error) {
	client := r.c.WithContext(ctx)
	names, err := client.SMembers(queueRegistryKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "error listing queues")
	}
	sort.Strings(names)
	return names, nil
}

// QueueInfo returns the queue's configuration, counters, and derived message
// counts, creating the queue first if needed.
func (r *RedisAdapter) QueueInfo(ctx context.Context, name string) (QueueInfo, error) {
	if err := ValidateQueueName(name); err != nil {
		return QueueInfo{}, err
	}
	client := r.c.WithContext(ctx)
	raw, err := queueInfoScript.Run(client, r.keys(name), r.args()...).Result()
	if err != nil {
		return QueueInfo{}, errors.Wrapf(err, "error reading info for queue %q", name)
	}
	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 9 {
		return QueueInfo{}, errors.Errorf("unexpected info reply for queue %q", name)
	}
	vals := make([]int64, len(fields))
	for i, f := range fields {
		v, err := replyInt64(f)
		if err != nil {
			return QueueInfo{}, errors.Wrapf(err, "bad info field %d for queue %q", i, name)
		}
		vals[i] = v
	}
	return QueueInfo{
		Name: name,
		Config: QueueConfig{
			VisibilityTimeout: vals[0],
			InitialDelay:      vals[1],
			MaxSize:           vals[2],
		},
		CreatedAt:      msTime(vals[3]),
		ModifiedAt:     msTime(vals[4]),
		TotalReceived:  vals[5],
		TotalSent:      vals[6],
		Messages:       vals[7],
		HiddenMessages: vals[8],
	}, nil
}

func (r *RedisAdapter) setConfigField(ctx context.Context, name, field string, value int64) error {
	if err := ValidateQueueName(name); err != nil {
		return err
	}
	if value < 0 {
		return errors.Errorf("%s cannot be negative: %d", field, value)
	}
	client := r.c.WithContext(ctx)
	err := setConfigScript.Run(client, r.keys(name), r.args(field, value)...).Err()
	return errors.Wrapf(err, "error setting %s for queue %q", field, name)
}

// SetVisibilityTimeout overwrites the queue's visibility timeout.
func (r *RedisAdapter) SetVisibilityTimeout(ctx context.Context, name string, seconds int64) error {
	return r.setConfigField(ctx, name, "vt", seconds)
}

// SetInitialDelay overwrites the queue's initial delivery delay.
func (r *RedisAdapter) SetInitialDelay(ctx context.Context, name string, seconds int64) error {
	return r.setConfigField(ctx, name, "delay", seconds)
}

// SetMaxSize overwrites the queue's advisory maximum message size.
func (r *RedisAdapter) SetMaxSize(ctx context.Context, name string, bytes int64) error {
	return r.setConfigField(ctx, name, "maxsize", bytes)
}

func pushArgs(opts *PushOptions) (delay interface{}, metadata []byte, err error) {
	delay = ""
	if opts != nil && opts.DelaySeconds != nil {
		if *opts.DelaySeconds < 0 {
			return nil, nil, errors.Errorf("delay cannot be negative: %d", *opts.DelaySeconds)
		}
		delay = *opts.DelaySeconds
	}
	md := map[string]interface{}{}
	if opts != nil && opts.Metadata != nil {
		md = opts.Metadata
	}
	metadata, err = msgpack.Marshal(md)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to encode message metadata")
	}
	return delay, metadata, nil
}

// Push enqueues a payload and returns its message id.
//
// The id's random suffix is generated client-side; the script prepends the
// base36 encoding of the server's clock so identifiers stay ordered by the
// store's single time source.
func (r *RedisAdapter) Push(ctx context.Context, name string, payload []byte, opts *PushOptions) (string, error) {
	if err := ValidateQueueName(name); err != nil {
		return "", err
	}
	delay, metadata, err := pushArgs(opts)
	if err != nil {
		return "", err
	}
	client := r.c.WithContext(ctx)
	id, err := pushScript.Run(client, r.keys(name),
		r.args(payload, delay, msgid.Suffix(), metadata)...).Result()
	if err != nil {
		return "", errors.Wrapf(err, "error pushing to queue %q", name)
	}
	s, ok := id.(string)
	if !ok {
		return "", errors.Errorf("unexpected push reply %T for queue %q", id, name)
	}
	return s, nil
}

// PushMany enqueues several payloads in one pipeline. Each push is still its
// own atomic transaction; the pipeline only saves round trips.
func (r *RedisAdapter) PushMany(ctx context.Context, name string, payloads [][]byte, opts *PushOptions) ([]string, error) {
	if err := ValidateQueueName(name); err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	client := r.c.WithContext(ctx)
	// EVALSHA inside a pipeline cannot fall back to EVAL, so load up front.
	if err := pushScript.Load(client).Err(); err != nil {
		return nil, errors.Wrapf(err, "error loading push script for queue %q", name)
	}
	pipe := client.TxPipeline()
	cmds := make([]*redis.Cmd, 0, len(payloads))
	for _, payload := range payloads {
		delay, metadata, err := pushArgs(opts)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, pipe.EvalSha(pushScript.Hash(), r.keys(name),
			r.args(payload, delay, msgid.Suffix(), metadata)...))
	}
	if _, err := pipe.Exec(); err != nil {
		return nil, errors.Wrapf(err, "error pushing batch to queue %q", name)
	}
	ids := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		id, err := cmd.Result()
		if err != nil {
			return nil, errors.Wrapf(err, "error pushing batch to queue %q", name)
		}
		s, ok := id.(string)
		if !ok {
			return nil, errors.Errorf("unexpected push reply %T for queue %q", id, name)
		}
		ids = append(ids, s)
	}
	return ids, nil
}

// Peek returns the next eligible message without mutating anything, or nil
// if none is eligible.
func (r *RedisAdapter) Peek(ctx context.Context, name string) (*Message, error) {
	if err := ValidateQueueName(name); err != nil {
		return nil, err
	}
	client := r.c.WithContext(ctx)
	raw, err := peekScript.Run(client, r.keys(name), r.args()...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error peeking at queue %q", name)
	}
	return parseMessage(raw, name)
}

// Get returns the next eligible message and hides it for the visibility
// timeout, or nil if none is eligible.
func (r *RedisAdapter) Get(ctx context.Context, name string, opts *GetOptions) (*Message, error) {
	if err := ValidateQueueName(name); err != nil {
		return nil, err
	}
	var vt interface{} = ""
	if opts != nil && opts.VisibilityTimeoutSeconds != nil {
		if *opts.VisibilityTimeoutSeconds < 0 {
			return nil, errors.Errorf("visibility timeout cannot be negative: %d", *opts.VisibilityTimeoutSeconds)
		}
		vt = *opts.VisibilityTimeoutSeconds
	}
	client := r.c.WithContext(ctx)
	raw, err := getScript.Run(client, r.keys(name), r.args(vt)...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error getting from queue %q", name)
	}
	return parseMessage(raw, name)
}

// Pop returns the next eligible message and deletes it in the same
// transaction, or nil if none is eligible.
func (r *RedisAdapter) Pop(ctx context.Context, name string) (*Message, error) {
	if err := ValidateQueueName(name); err != nil {
		return nil, err
	}
	client := r.c.WithContext(ctx)
	raw, err := popScript.Run(client, r.keys(name), r.args()...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error popping from queue %q", name)
	}
	return parseMessage(raw, name)
}

// Delete removes a message from the queue. Deleting an absent id is a no-op.
func (r *RedisAdapter) Delete(ctx context.Context, name, id string) error {
	if err := ValidateQueueName(name); err != nil {
		return err
	}
	if id == "" {
		return errors.New("message id cannot be empty")
	}
	client := r.c.WithContext(ctx)
	err := deleteScript.Run(client, r.keys(name), r.args(id)...).Err()
	return errors.Wrapf(err, "error deleting message %q from queue %q", id, name)
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}

func replyInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case string:
		var n int64
		for _, c := range t {
			if c < '0' || c > '9' {
				return 0, errors.Errorf("non-numeric reply %q", t)
			}
			n = n*10 + int64(c-'0')
		}
		return n, nil
	default:
		return 0, errors.Errorf("unexpected reply type %T", v)
	}
}

// parseMessage decodes the positional {id, payload, rc, fr, metadata} reply
// shared by the peek, get, and pop scripts. An empty reply means no message
// was eligible and maps to (nil, nil).
func parseMessage(raw interface{}, queue string) (*Message, error) {
	fields, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Errorf("unexpected message reply %T from queue %q", raw, queue)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	if len(fields) != 5 {
		return nil, errors.Errorf("unexpected message reply length %d from queue %q", len(fields), queue)
	}
	id, ok := fields[0].(string)
	if !ok {
		return nil, errors.Errorf("unexpected message id type %T from queue %q", fields[0], queue)
	}
	payload, ok := fields[1].(string)
	if !ok {
		return nil, errors.Errorf("unexpected payload type %T for message %q", fields[1], id)
	}
	rc, err := replyInt64(fields[2])
	if err != nil {
		return nil, errors.Wrapf(err, "bad receive count for message %q", id)
	}
	fr, err := replyInt64(fields[3])
	if err != nil {
		return nil, errors.Wrapf(err, "bad first-retrieved timestamp for message %q", id)
	}
	blob, ok := fields[4].(string)
	if !ok {
		return nil, errors.Errorf("unexpected metadata type %T for message %q", fields[4], id)
	}
	sent, metadata, err := decodeMetadata([]byte(blob))
	if err != nil {
		return nil, errors.Wrapf(err, "bad metadata for message %q", id)
	}
	return &Message{
		ID:             id,
		Payload:        []byte(payload),
		Sent:           sent,
		ReceiveCount:   rc,
		FirstRetrieved: msTime(fr),
		Metadata:       metadata,
	}, nil
}

// decodeMetadata unpacks a metadata blob, splitting out the engine-stamped
// sent timestamp from the caller-supplied fields.
func decodeMetadata(blob []byte) (time.Time, map[string]interface{}, error) {
	var md map[string]interface{}
	if err := msgpack.Unmarshal(blob, &md); err != nil {
		return time.Time{}, nil, errors.Wrap(err, "unable to decode metadata")
	}
	var sent time.Time
	if v, ok := md["sent"]; ok {
		ms, err := metadataInt64(v)
		if err != nil {
			return time.Time{}, nil, errors.Wrap(err, "bad sent timestamp")
		}
		sent = msTime(ms)
		delete(md, "sent")
	}
	if len(md) == 0 {
		md = nil
	}
	return sent, md, nil
}

func metadataInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	default:
		return 0, errors.Errorf("unexpected numeric type %T", v)
	}
}
