package queue

import "github.com/redis/go-redis/v9"

// Shared Lua fragments. Scripts are assembled from these so the trim and
// retry rules are identical wherever a job reaches a terminal state.
const (
	luaTrim = `
local function trim(set, keep, prefix)
  local excess = redis.call('ZCARD', set) - keep
  if excess > 0 then
    local old = redis.call('ZRANGE', set, 0, excess - 1)
    for _, oid in ipairs(old) do
      redis.call('DEL', prefix .. oid)
    end
    redis.call('ZREMRANGEBYRANK', set, 0, excess - 1)
  end
end
`

	luaFailJob = `
local function fail_job(jk, id, reason, now_ms, active, delayed, failed, keep, prefix)
  local now = tonumber(now_ms)
  local attempts = tonumber(redis.call('HGET', jk, 'attempts') or '0')
  local max = tonumber(redis.call('HGET', jk, 'max_attempts') or '1')
  redis.call('ZREM', active, id)
  redis.call('HDEL', jk, 'lease_token', 'worker')
  redis.call('HSET', jk, 'last_error', reason)
  if attempts < max then
    local delay = tonumber(redis.call('HGET', jk, 'backoff_delay') or '0')
    if redis.call('HGET', jk, 'backoff_type') == 'exponential' and attempts > 1 then
      delay = delay * (2 ^ (attempts - 1))
    end
    redis.call('HSET', jk, 'state', 'delayed')
    redis.call('ZADD', delayed, now + delay, id)
    return 'delayed'
  end
  redis.call('HSET', jk, 'state', 'failed', 'failure_reason', reason, 'finished_at', now_ms)
  redis.call('ZADD', failed, now, id)
  trim(failed, keep, prefix)
  return 'failed'
end
`
)

// enqueueScript records a new job and makes it visible.
//
// KEYS: job, waiting, delayed
// ARGV: id, queue, payload, priority, max_attempts, backoff_type,
// backoff_delay_ms, now_ms, delay_ms, member
var enqueueScript = redis.NewScript(`
local now = tonumber(ARGV[8])
local delay = tonumber(ARGV[9])
local state = 'waiting'
if delay > 0 then state = 'delayed' end
redis.call('HSET', KEYS[1],
  'id', ARGV[1], 'queue', ARGV[2], 'payload', ARGV[3], 'priority', ARGV[4],
  'state', state, 'attempts', 0, 'max_attempts', ARGV[5],
  'backoff_type', ARGV[6], 'backoff_delay', ARGV[7], 'progress', 0,
  'created_at', ARGV[8], 'member', ARGV[10])
if delay > 0 then
  redis.call('ZADD', KEYS[3], now + delay, ARGV[1])
else
  redis.call('ZADD', KEYS[2], ARGV[4], ARGV[10])
end
return state
`)

// luaPromote moves every due delayed job back to waiting under its
// original member so it keeps its FIFO position.
const luaPromote = `
local function promote(waiting, delayed, prefix, now)
  local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', now)
  for _, id in ipairs(due) do
    local jk = prefix .. id
    redis.call('ZREM', delayed, id)
    local prio = redis.call('HGET', jk, 'priority')
    local member = redis.call('HGET', jk, 'member')
    if prio and member then
      redis.call('ZADD', waiting, prio, member)
      redis.call('HSET', jk, 'state', 'waiting')
    end
  end
end
`

// claimScript promotes due delayed jobs, then takes the best waiting job.
//
// KEYS: waiting, delayed, active
// ARGV: job key prefix, now_ms, lease_ms, lease token, worker id
var claimScript = redis.NewScript(luaPromote + `
local now = tonumber(ARGV[2])
promote(KEYS[1], KEYS[2], ARGV[1], now)
while true do
  local top = redis.call('ZRANGE', KEYS[1], 0, 0)
  if #top == 0 then
    return false
  end
  redis.call('ZREM', KEYS[1], top[1])
  local id = string.sub(top[1], 18)
  local jk = ARGV[1] .. id
  if redis.call('EXISTS', jk) == 1 then
    local expires = now + tonumber(ARGV[3])
    redis.call('HSET', jk, 'state', 'active', 'lease_token', ARGV[4],
      'worker', ARGV[5], 'started_at', ARGV[2], 'progress', 0)
    redis.call('HINCRBY', jk, 'attempts', 1)
    redis.call('ZADD', KEYS[3], expires, id)
    return redis.call('HGETALL', jk)
  end
end
`)

// peekScript reports whether a claim would find a job, without changing anything.
//
// KEYS: waiting, delayed
// ARGV: now_ms
var peekScript = redis.NewScript(`
if redis.call('ZCARD', KEYS[1]) > 0 then
  return 1
end
if redis.call('ZCOUNT', KEYS[2], '-inf', ARGV[1]) > 0 then
  return 1
end
return 0
`)

// luaOwned is true when the job is active under the given lease token.
const luaOwned = `
local function owned(jk, token)
  return redis.call('HGET', jk, 'state') == 'active' and redis.call('HGET', jk, 'lease_token') == token
end
`

// progressScript raises progress and extends the lease. A negative
// percentage only extends the lease. Returns the stored progress or -1 when
// the caller does not own the job.
//
// KEYS: job, active
// ARGV: lease token, percent, now_ms, lease_ms, id
var progressScript = redis.NewScript(luaOwned + `
if not owned(KEYS[1], ARGV[1]) then
  return -1
end
local cur = tonumber(redis.call('HGET', KEYS[1], 'progress') or '0')
local pct = tonumber(ARGV[2])
if pct > cur then
  redis.call('HSET', KEYS[1], 'progress', pct)
  cur = pct
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[3]) + tonumber(ARGV[4]), ARGV[5])
return cur
`)

// completeScript records the result of an owned job.
//
// KEYS: job, active, completed
// ARGV: lease token, result, now_ms, keep_completed, job key prefix, id
var completeScript = redis.NewScript(luaOwned + luaTrim + `
if not owned(KEYS[1], ARGV[1]) then
  return -1
end
local now = tonumber(ARGV[3])
redis.call('ZREM', KEYS[2], ARGV[6])
redis.call('HDEL', KEYS[1], 'lease_token', 'worker')
redis.call('HSET', KEYS[1], 'state', 'completed', 'result', ARGV[2], 'finished_at', ARGV[3])
redis.call('ZADD', KEYS[3], now, ARGV[6])
trim(KEYS[3], tonumber(ARGV[4]), ARGV[5])
return 1
`)

// failScript records a failed attempt of an owned job and either schedules
// a retry or fails it for good. Returns the resulting state or -1.
//
// KEYS: job, active, delayed, failed
// ARGV: lease token, reason, now_ms, keep_failed, job key prefix, id
var failScript = redis.NewScript(luaOwned + luaTrim + luaFailJob + `
if not owned(KEYS[1], ARGV[1]) then
  return -1
end
return fail_job(KEYS[1], ARGV[6], ARGV[2], ARGV[3], KEYS[2], KEYS[3], KEYS[4], tonumber(ARGV[4]), ARGV[5])
`)

// reapScript fails every active job whose lease has expired. Returns a flat
// list of id, resulting state pairs.
//
// KEYS: active, delayed, failed
// ARGV: now_ms, keep_failed, job key prefix, reason
var reapScript = redis.NewScript(luaTrim + luaFailJob + `
local now = tonumber(ARGV[1])
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now)
local out = {}
for _, id in ipairs(expired) do
  local jk = ARGV[3] .. id
  if redis.call('HGET', jk, 'state') == 'active' then
    local state = fail_job(jk, id, ARGV[4], ARGV[1], KEYS[1], KEYS[2], KEYS[3], tonumber(ARGV[2]), ARGV[3])
    table.insert(out, id)
    table.insert(out, state)
  else
    redis.call('ZREM', KEYS[1], id)
  end
end
return out
`)
