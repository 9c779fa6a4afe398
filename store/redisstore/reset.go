package redisstore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] account index, KEYS[2] new record.
// ARGV: record prefix, new hash, id, account id, expires ms, now ms, ttl ms.
const issueResetScript = markMembersScript + keepIndexAliveScript + `
mark_members(KEYS[1], ARGV[1], "used", "1")
redis.call("HSET", KEYS[2], "id", ARGV[3], "account_id", ARGV[4], "expires_at", ARGV[5], "used", "0", "created_at", ARGV[6])
redis.call("PEXPIRE", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[1], ARGV[2])
keep_index_alive(KEYS[1], tonumber(ARGV[7]))
return 1
`

// KEYS[1] record. ARGV[1] now ms.
const consumeResetScript = `
local rec = redis.call("HMGET", KEYS[1], "used", "expires_at")
if not rec[1] then
  return 0
end
if rec[1] == "1" then
  return 0
end
if tonumber(rec[2]) <= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "used", "1")
return 1
`

var (
	issueResetLua   = redis.NewScript(issueResetScript)
	consumeResetLua = redis.NewScript(consumeResetScript)
)

// ResetTokens implements store.ResetTokenStore.
type ResetTokens struct {
	redis redis.UniversalClient
	opts  options
}

// NewResetTokens wraps an injected client. The caller owns the client.
func NewResetTokens(client redis.UniversalClient, opts ...Option) *ResetTokens {
	return &ResetTokens{redis: client, opts: buildOptions(opts)}
}

func (s *ResetTokens) recordPrefix() string { return s.opts.prefix + "prt:" }
func (s *ResetTokens) indexPrefix() string  { return s.opts.prefix + "prta:" }

func (s *ResetTokens) recordKey(hash [32]byte) string {
	return s.recordPrefix() + hashKey(hash)
}

func (s *ResetTokens) Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", err
	}

	now := s.opts.now()
	keys := []string{s.indexPrefix() + accountID, s.recordKey(hash)}
	args := []any{
		s.recordPrefix(),
		hashKey(hash),
		uuid.NewString(),
		accountID,
		now.Add(ttl).UnixMilli(),
		now.UnixMilli(),
		ttlMillis(ttl),
	}
	if err := issueResetLua.Run(ctx, s.redis, keys, args...).Err(); err != nil {
		return "", unavailable(err)
	}
	return secret, nil
}

func (s *ResetTokens) Check(ctx context.Context, secret string) (store.ResetToken, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return store.ResetToken{}, store.ErrNotFound
	}

	vals, err := s.redis.HMGet(ctx, s.recordKey(hash), "id", "account_id", "expires_at", "used", "created_at").Result()
	if err != nil {
		return store.ResetToken{}, unavailable(err)
	}
	if len(vals) != 5 || isNil(vals[0]) || asString(vals[3]) == "1" {
		return store.ResetToken{}, store.ErrNotFound
	}

	expires, err := unixMilli(asString(vals[2]))
	if err != nil || !s.opts.now().Before(expires) {
		return store.ResetToken{}, store.ErrNotFound
	}
	created, err := unixMilli(asString(vals[4]))
	if err != nil {
		return store.ResetToken{}, store.ErrNotFound
	}

	return store.ResetToken{
		ID:         asString(vals[0]),
		AccountID:  asString(vals[1]),
		SecretHash: hash,
		ExpiresAt:  expires,
		CreatedAt:  created,
	}, nil
}

func (s *ResetTokens) Consume(ctx context.Context, secret string) (bool, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return false, nil
	}

	n, err := consumeResetLua.Run(ctx, s.redis, []string{s.recordKey(hash)}, s.opts.now().UnixMilli()).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

var _ store.ResetTokenStore = (*ResetTokens)(nil)
