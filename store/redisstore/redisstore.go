// Package redisstore implements the refresh and password-reset token stores
// on Redis. Every multi-key mutation runs as one Lua script, so issue and
// rotate are atomic.
//
// Scripts derive per-account index keys at run time; use a standalone or
// sentinel deployment rather than Redis Cluster.
package redisstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// Option configures the Redis stores.
type Option func(*options)

type options struct {
	prefix string
	now    func() time.Time
}

// WithPrefix namespaces every key. The default is "authcore:".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{prefix: "authcore:", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// markMembersScript defines mark_members, which sets one field on every
// record indexed by a set and prunes members whose record has expired.
const markMembersScript = `
local function mark_members(set_key, record_prefix, field, value)
  local members = redis.call("SMEMBERS", set_key)
  for _, m in ipairs(members) do
    local k = record_prefix .. m
    if redis.call("EXISTS", k) == 1 then
      redis.call("HSET", k, field, value)
    else
      redis.call("SREM", set_key, m)
    end
  end
end
`

// keepIndexAliveScript defines keep_index_alive, which extends an index set
// so it outlives its newest record.
const keepIndexAliveScript = `
local function keep_index_alive(set_key, ttl_ms)
  local current = redis.call("PTTL", set_key)
  if current < ttl_ms then
    redis.call("PEXPIRE", set_key, ttl_ms)
  end
end
`

var errUnexpectedReply = errors.New("unexpected script reply")

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func hashKey(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

func unixMilli(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func ttlMillis(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

// isNil reports a missing hash field as returned by HMGET.
func isNil(v any) bool { return v == nil }

func asString(v any) string {
	s, _ := v.(string)
	return s
}
