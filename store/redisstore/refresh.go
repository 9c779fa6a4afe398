package redisstore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReused   int64 = 2
	rotateStatusRotated  int64 = 3
)

// KEYS[1] account index, KEYS[2] new record.
// ARGV: record prefix, new hash, id, account id, expires ms, now ms, ttl ms.
const issueRefreshScript = markMembersScript + keepIndexAliveScript + `
mark_members(KEYS[1], ARGV[1], "revoked", "1")
redis.call("HSET", KEYS[2], "id", ARGV[3], "account_id", ARGV[4], "expires_at", ARGV[5], "revoked", "0", "created_at", ARGV[6])
redis.call("PEXPIRE", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[1], ARGV[2])
keep_index_alive(KEYS[1], tonumber(ARGV[7]))
return 1
`

// KEYS[1] old record, KEYS[2] new record.
// ARGV: record prefix, index prefix, new hash, new id, now ms, ttl ms, expires ms.
const rotateRefreshScript = markMembersScript + keepIndexAliveScript + `
local rec = redis.call("HMGET", KEYS[1], "id", "account_id", "expires_at", "revoked", "created_at")
if not rec[1] then
  return {0}
end
if tonumber(rec[3]) <= tonumber(ARGV[5]) then
  return {1}
end
if rec[4] == "1" then
  return {2}
end

local index = ARGV[2] .. rec[2]
mark_members(index, ARGV[1], "revoked", "1")

redis.call("HSET", KEYS[2], "id", ARGV[4], "account_id", rec[2], "expires_at", ARGV[7], "revoked", "0", "created_at", ARGV[5])
redis.call("PEXPIRE", KEYS[2], ARGV[6])
redis.call("SADD", index, ARGV[3])
keep_index_alive(index, tonumber(ARGV[6]))
return {3, rec[1], rec[2], rec[3], rec[5]}
`

const revokeRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

// KEYS[1] account index. ARGV[1] record prefix.
const revokeAllRefreshScript = markMembersScript + `
mark_members(KEYS[1], ARGV[1], "revoked", "1")
return 1
`

var (
	issueRefreshLua     = redis.NewScript(issueRefreshScript)
	rotateRefreshLua    = redis.NewScript(rotateRefreshScript)
	revokeRefreshLua    = redis.NewScript(revokeRefreshScript)
	revokeAllRefreshLua = redis.NewScript(revokeAllRefreshScript)
)

// RefreshTokens implements store.RefreshTokenStore. Revoked records are kept
// until their original expiry so that reuse can be detected.
type RefreshTokens struct {
	redis redis.UniversalClient
	opts  options
}

// NewRefreshTokens wraps an injected client. The caller owns the client.
func NewRefreshTokens(client redis.UniversalClient, opts ...Option) *RefreshTokens {
	return &RefreshTokens{redis: client, opts: buildOptions(opts)}
}

func (s *RefreshTokens) recordPrefix() string { return s.opts.prefix + "rt:" }
func (s *RefreshTokens) indexPrefix() string  { return s.opts.prefix + "rta:" }

func (s *RefreshTokens) recordKey(hash [32]byte) string {
	return s.recordPrefix() + hashKey(hash)
}

func (s *RefreshTokens) Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", err
	}

	now := s.opts.now()
	expires := now.Add(ttl)
	keys := []string{s.indexPrefix() + accountID, s.recordKey(hash)}
	args := []any{
		s.recordPrefix(),
		hashKey(hash),
		uuid.NewString(),
		accountID,
		expires.UnixMilli(),
		now.UnixMilli(),
		ttlMillis(ttl),
	}
	if err := issueRefreshLua.Run(ctx, s.redis, keys, args...).Err(); err != nil {
		return "", unavailable(err)
	}
	return secret, nil
}

func (s *RefreshTokens) Redeem(ctx context.Context, secret string) (store.RefreshToken, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return store.RefreshToken{}, store.ErrNotFound
	}

	vals, err := s.redis.HMGet(ctx, s.recordKey(hash), "id", "account_id", "expires_at", "revoked", "created_at").Result()
	if err != nil {
		return store.RefreshToken{}, unavailable(err)
	}
	if len(vals) != 5 || isNil(vals[0]) {
		return store.RefreshToken{}, store.ErrNotFound
	}

	rec, err := refreshFromFields(hash, asString(vals[0]), asString(vals[1]), asString(vals[2]), asString(vals[4]))
	if err != nil {
		return store.RefreshToken{}, store.ErrNotFound
	}
	rec.Revoked = asString(vals[3]) == "1"

	if !s.opts.now().Before(rec.ExpiresAt) {
		return store.RefreshToken{}, store.ErrNotFound
	}
	if rec.Revoked {
		return store.RefreshToken{}, store.ErrTokenReused
	}
	return rec, nil
}

func (s *RefreshTokens) Rotate(ctx context.Context, oldSecret string, ttl time.Duration) (store.RefreshToken, string, error) {
	oldHash, err := internal.ParseOpaqueSecret(oldSecret)
	if err != nil {
		return store.RefreshToken{}, "", store.ErrNotFound
	}
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return store.RefreshToken{}, "", err
	}

	now := s.opts.now()
	keys := []string{s.recordKey(oldHash), s.recordKey(hash)}
	args := []any{
		s.recordPrefix(),
		s.indexPrefix(),
		hashKey(hash),
		uuid.NewString(),
		now.UnixMilli(),
		ttlMillis(ttl),
		now.Add(ttl).UnixMilli(),
	}
	res, err := rotateRefreshLua.Run(ctx, s.redis, keys, args...).Slice()
	if err != nil {
		return store.RefreshToken{}, "", unavailable(err)
	}
	if len(res) == 0 {
		return store.RefreshToken{}, "", unavailable(errUnexpectedReply)
	}

	status, _ := res[0].(int64)
	switch status {
	case rotateStatusRotated:
		if len(res) != 5 {
			return store.RefreshToken{}, "", unavailable(errUnexpectedReply)
		}
		old, err := refreshFromFields(oldHash, asString(res[1]), asString(res[2]), asString(res[3]), asString(res[4]))
		if err != nil {
			return store.RefreshToken{}, "", unavailable(err)
		}
		return old, secret, nil
	case rotateStatusReused:
		return store.RefreshToken{}, "", store.ErrTokenReused
	case rotateStatusNotFound, rotateStatusExpired:
		return store.RefreshToken{}, "", store.ErrNotFound
	default:
		return store.RefreshToken{}, "", unavailable(errUnexpectedReply)
	}
}

func (s *RefreshTokens) Revoke(ctx context.Context, secret string) (bool, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return false, nil
	}

	n, err := revokeRefreshLua.Run(ctx, s.redis, []string{s.recordKey(hash)}).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *RefreshTokens) RevokeAll(ctx context.Context, accountID string) error {
	err := revokeAllRefreshLua.Run(ctx, s.redis, []string{s.indexPrefix() + accountID}, s.recordPrefix()).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Ping implements store.Pinger.
func (s *RefreshTokens) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func refreshFromFields(hash [32]byte, id, accountID, expiresAt, createdAt string) (store.RefreshToken, error) {
	expires, err := unixMilli(expiresAt)
	if err != nil {
		return store.RefreshToken{}, err
	}
	created, err := unixMilli(createdAt)
	if err != nil {
		return store.RefreshToken{}, err
	}
	return store.RefreshToken{
		ID:         id,
		AccountID:  accountID,
		SecretHash: hash,
		ExpiresAt:  expires,
		CreatedAt:  created,
	}, nil
}

var (
	_ store.RefreshTokenStore = (*RefreshTokens)(nil)
	_ store.Pinger            = (*RefreshTokens)(nil)
)
