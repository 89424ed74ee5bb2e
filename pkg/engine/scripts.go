package engine

import "github.com/go-redis/redis"

// Every operation is one server-side Lua script so that selection,
// rescheduling, and bookkeeping are indivisible. The scripts share a common
// prelude and key scheme:
//
//	KEYS[1] = <queue>     sorted set: message id -> visible-at (epoch ms)
//	KEYS[2] = <queue>:Q   hash: config, counters, and per-message fields
//	KEYS[3] = QUEUES      set of registered queue names
//
// ARGV[1..3] are the default visibility timeout, initial delay, and max size
// used when the queue has to be created implicitly; operation arguments start
// at ARGV[4]. The store's own clock (TIME) is the only time source, so
// visible-at comparisons are consistent across all callers regardless of
// their local clocks.
const scriptPrelude = `
if redis.replicate_commands then redis.replicate_commands() end

local function now_ms()
  local t = redis.call('TIME')
  return tonumber(t[1]), tonumber(t[2]), tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
end

local function b36encode(n)
  if n < 0 then
    error('cannot base36 encode a negative value')
  end
  if n == 0 then
    return '0'
  end
  local digits = '0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ'
  local out = ''
  while n > 0 do
    local r = n % 36
    out = digits:sub(r + 1, r + 1) .. out
    n = math.floor((n - r) / 36)
  end
  return out
end

-- Idempotent queue registration. Returns 1 when the queue was created.
local function ensure_queue(ms, vt, delay, maxsize)
  if redis.call('EXISTS', KEYS[2]) == 1 then
    return 0
  end
  redis.call('HMSET', KEYS[2],
    'vt', vt, 'delay', delay, 'maxsize', maxsize,
    'created', ms, 'modified', ms,
    'totalrecv', 0, 'totalsent', 0)
  redis.call('SADD', KEYS[3], KEYS[1])
  return 1
end

-- Earliest index entry whose score is at or below ms, or nil.
local function eligible(ms)
  local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ms, 'LIMIT', 0, 1)
  if #ids == 0 then
    return nil
  end
  return ids[1]
end
`

var createQueueScript = redis.NewScript(scriptPrelude + `
local _, _, ms = now_ms()
return ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
`)

var deleteQueueScript = redis.NewScript(scriptPrelude + `
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('SREM', KEYS[3], KEYS[1])
return 1
`)

// Returns {vt, delay, maxsize, created, modified, totalrecv, totalsent,
// msgs, hiddenmsgs}.
var queueInfoScript = redis.NewScript(scriptPrelude + `
local _, _, ms = now_ms()
ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
local info = redis.call('HMGET', KEYS[2],
  'vt', 'delay', 'maxsize', 'created', 'modified', 'totalrecv', 'totalsent')
info[8] = redis.call('ZCARD', KEYS[1])
info[9] = redis.call('ZCOUNT', KEYS[1], '(' .. ms, '+inf')
return info
`)

// ARGV[4] = field name, ARGV[5] = value.
var setConfigScript = redis.NewScript(scriptPrelude + `
local _, _, ms = now_ms()
ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[4], ARGV[5])
redis.call('HSET', KEYS[2], 'modified', ms)
return 1
`)

// ARGV[4] = payload, ARGV[5] = delay override in seconds or '' for the queue
// default, ARGV[6] = random id suffix, ARGV[7] = msgpack metadata blob.
// Returns the message id.
var pushScript = redis.NewScript(scriptPrelude + `
local sec, usec, ms = now_ms()
ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
local id = b36encode(sec * 1000000 + usec) .. ARGV[6]
local delay = ARGV[5]
if delay == '' then
  delay = redis.call('HGET', KEYS[2], 'delay')
end
redis.call('ZADD', KEYS[1], ms + delay * 1000, id)
redis.call('HSET', KEYS[2], id, ARGV[4])
local md = cmsgpack.unpack(ARGV[7])
md['sent'] = ms
redis.call('HSET', KEYS[2], id .. ':metadata', cmsgpack.pack(md))
redis.call('HINCRBY', KEYS[2], 'totalsent', 1)
return id
`)

// Returns {} or {id, payload, rc, fr, metadata}. No side effects.
var peekScript = redis.NewScript(scriptPrelude + `
local _, _, ms = now_ms()
ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
local id = eligible(ms)
if not id then
  return {}
end
return {
  id,
  redis.call('HGET', KEYS[2], id),
  tonumber(redis.call('HGET', KEYS[2], id .. ':rc')) or 0,
  tonumber(redis.call('HGET', KEYS[2], id .. ':fr')) or 0,
  redis.call('HGET', KEYS[2], id .. ':metadata'),
}
`)

// ARGV[4] = visibility timeout override in seconds or '' for the queue
// default. Returns {} or {id, payload, rc, fr, metadata}.
//
// The rescore is relative: the score is incremented by the timeout rather
// than set to now + timeout, so a message that was already overdue gets a
// correspondingly shorter hidden window.
var getScript = redis.NewScript(scriptPrelude + `
local _, _, ms = now_ms()
ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
local id = eligible(ms)
if not id then
  return {}
end
local vt = ARGV[4]
if vt == '' then
  vt = redis.call('HGET', KEYS[2], 'vt')
end
redis.call('ZINCRBY', KEYS[1], vt * 1000, id)
redis.call('HINCRBY', KEYS[2], 'totalrecv', 1)
local rc = redis.call('HINCRBY', KEYS[2], id .. ':rc', 1)
local fr
if rc == 1 then
  fr = ms
  redis.call('HSET', KEYS[2], id .. ':fr', fr)
else
  fr = tonumber(redis.call('HGET', KEYS[2], id .. ':fr'))
end
return {
  id,
  redis.call('HGET', KEYS[2], id),
  rc,
  fr,
  redis.call('HGET', KEYS[2], id .. ':metadata'),
}
`)

// Retrieval and permanent removal in one transaction: no visibility window
// is opened and the message can never be redelivered. Returns {} or
// {id, payload, rc, fr, metadata}.
var popScript = redis.NewScript(scriptPrelude + `
local _, _, ms = now_ms()
ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
local id = eligible(ms)
if not id then
  return {}
end
redis.call('HINCRBY', KEYS[2], 'totalrecv', 1)
local rc = (tonumber(redis.call('HGET', KEYS[2], id .. ':rc')) or 0) + 1
local fr = tonumber(redis.call('HGET', KEYS[2], id .. ':fr')) or ms
local payload = redis.call('HGET', KEYS[2], id)
local metadata = redis.call('HGET', KEYS[2], id .. ':metadata')
redis.call('ZREM', KEYS[1], id)
redis.call('HDEL', KEYS[2], id, id .. ':rc', id .. ':fr', id .. ':metadata')
return {id, payload, rc, fr, metadata}
`)

// ARGV[4] = message id. Deleting an absent id is a no-op.
var deleteScript = redis.NewScript(scriptPrelude + `
local _, _, ms = now_ms()
ensure_queue(ms, ARGV[1], ARGV[2], ARGV[3])
redis.call('ZREM', KEYS[1], ARGV[4])
redis.call('HDEL', KEYS[2],
  ARGV[4], ARGV[4] .. ':rc', ARGV[4] .. ':fr', ARGV[4] .. ':metadata')
return 1
`)
