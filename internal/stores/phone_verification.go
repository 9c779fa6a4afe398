package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const phoneChallengeVersionV1 = 1

var (
	ErrPhoneChallengeNotFound   = errors.New("phone challenge not found")
	ErrPhoneCodeMismatch        = errors.New("phone code mismatch")
	ErrPhoneAttemptsExceeded    = errors.New("phone challenge attempts exceeded")
	ErrPhoneChallengeRedisError = errors.New("phone challenge redis unavailable")
)

// consumePhoneChallengeLua atomically performs GET→validate→DEL/SET on a
// challenge record.
// KEYS[1] = record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = max attempts
// ARGV[3] = now, unix milliseconds
//
// Returns the record bytes on success, or an error reply: "not_found",
// "expired", "attempts_exceeded", "code_mismatch".
var consumePhoneChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])

-- version(1) attempts(2) expiresAt(8) accountIDLen(2) accountID phoneLen(1) phone hash(32)
if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end
if nowMs >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local idLen = string.byte(data, 12) * 256 + string.byte(data, 13)
local phoneLen = string.byte(data, 14 + idLen)
local hashOffset = 15 + idLen + phoneLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// PhoneChallenge binds a one-time code to an account and the number it was
// sent to.
type PhoneChallenge struct {
	AccountID string
	Phone     string
	CodeHash  [32]byte
	ExpiresAt int64 // unix milliseconds
	Attempts  uint16
}

// PhoneVerificationStore keeps at most one pending challenge per account in
// Redis.
type PhoneVerificationStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewPhoneVerificationStore wraps an injected client. The caller owns it.
func NewPhoneVerificationStore(redisClient redis.UniversalClient, prefix string) *PhoneVerificationStore {
	if prefix == "" {
		prefix = "apv"
	}
	return &PhoneVerificationStore{redis: redisClient, prefix: prefix, now: time.Now}
}

func (s *PhoneVerificationStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Save replaces any pending challenge of the account.
func (s *PhoneVerificationStore) Save(ctx context.Context, challenge *PhoneChallenge, ttl time.Duration) error {
	c := *challenge
	if c.ExpiresAt == 0 {
		c.ExpiresAt = s.now().Add(ttl).UnixMilli()
	}
	encoded, err := encodePhoneChallenge(&c)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(c.AccountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPhoneChallengeRedisError, err)
	}
	return nil
}

// Consume checks providedHash against the pending challenge. A match deletes
// the challenge; a mismatch counts an attempt and deletes it once
// maxAttempts is reached.
func (s *PhoneVerificationStore) Consume(ctx context.Context, accountID string, providedHash [32]byte, maxAttempts int) (*PhoneChallenge, error) {
	result, err := consumePhoneChallengeLua.Run(ctx, s.redis,
		[]string{s.key(accountID)},
		string(providedHash[:]),
		maxAttempts,
		s.now().UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrPhoneChallengeNotFound
		case "attempts_exceeded":
			return nil, ErrPhoneAttemptsExceeded
		case "code_mismatch":
			return nil, ErrPhoneCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrPhoneChallengeRedisError, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrPhoneChallengeRedisError)
	}
	challenge, err := decodePhoneChallenge([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhoneChallengeRedisError, err)
	}

	// Lua string comparison is not constant-time.
	if subtle.ConstantTimeCompare(challenge.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrPhoneCodeMismatch
	}
	return challenge, nil
}

// MemoryPhoneVerificationStore is the in-process counterpart used when no
// Redis client is configured.
type MemoryPhoneVerificationStore struct {
	mu      sync.Mutex
	records map[string]*PhoneChallenge
	now     func() time.Time
}

func NewMemoryPhoneVerificationStore(now func() time.Time) *MemoryPhoneVerificationStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryPhoneVerificationStore{records: make(map[string]*PhoneChallenge), now: now}
}

func (s *MemoryPhoneVerificationStore) Save(ctx context.Context, challenge *PhoneChallenge, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *challenge
	if c.ExpiresAt == 0 {
		c.ExpiresAt = s.now().Add(ttl).UnixMilli()
	}

	s.mu.Lock()
	s.records[c.AccountID] = &c
	s.mu.Unlock()
	return nil
}

func (s *MemoryPhoneVerificationStore) Consume(ctx context.Context, accountID string, providedHash [32]byte, maxAttempts int) (*PhoneChallenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.records[accountID]
	if !ok {
		return nil, ErrPhoneChallengeNotFound
	}
	if s.now().UnixMilli() >= c.ExpiresAt {
		delete(s.records, accountID)
		return nil, ErrPhoneChallengeNotFound
	}
	if subtle.ConstantTimeCompare(c.CodeHash[:], providedHash[:]) != 1 {
		c.Attempts++
		if int(c.Attempts) >= maxAttempts {
			delete(s.records, accountID)
			return nil, ErrPhoneAttemptsExceeded
		}
		return nil, ErrPhoneCodeMismatch
	}

	delete(s.records, accountID)
	out := *c
	return &out, nil
}

func encodePhoneChallenge(c *PhoneChallenge) ([]byte, error) {
	if len(c.AccountID) > 65535 {
		return nil, errors.New("phone challenge account id too long")
	}
	if len(c.Phone) > 255 {
		return nil, errors.New("phone challenge phone too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(phoneChallengeVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, c.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(c.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(c.AccountID)
	buf.WriteByte(byte(len(c.Phone)))
	buf.WriteString(c.Phone)
	buf.Write(c.CodeHash[:])

	return buf.Bytes(), nil
}

func decodePhoneChallenge(data []byte) (*PhoneChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != phoneChallengeVersionV1 {
		return nil, errors.New("invalid phone challenge version")
	}

	c := &PhoneChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &c.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &c.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	c.AccountID = string(id)

	phoneLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	phone := make([]byte, phoneLen)
	if _, err := io.ReadFull(reader, phone); err != nil {
		return nil, err
	}
	c.Phone = string(phone)

	if _, err := io.ReadFull(reader, c.CodeHash[:]); err != nil {
		return nil, err
	}
	return c, nil
}
