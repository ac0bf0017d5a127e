package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersionV1 = 1
	defaultChallengePrefix   = "pac"
)

var (
	ErrChallengeNotFound         = errors.New("otp challenge not found")
	ErrChallengeCodeMismatch     = errors.New("otp challenge code mismatch")
	ErrChallengeAttemptsExceeded = errors.New("otp challenge attempts exceeded")
	ErrChallengeRedisUnavailable = errors.New("otp challenge redis unavailable")
)

// consumeChallengeLua atomically performs GET→validate→DEL/SET on a challenge record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts (int string)
// ARGV[3] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "attempts_exceeded", "code_mismatch"
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

-- Layout: version(1) attempts(2) expiresAt(8) issuedAt(8) phoneLen(2) phone hash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 4, 11)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local phoneLen = string.byte(data, 20) * 256 + string.byte(data, 21)
local hashOffset = 22 + phoneLen
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

// ChallengeRecord is the stored state of one outstanding code for a phone.
type ChallengeRecord struct {
	Phone     string
	CodeHash  [32]byte
	IssuedAt  int64
	ExpiresAt int64
	Attempts  uint16
}

// ChallengeStore keeps at most one challenge per phone. Saving a new one
// replaces the previous code and its attempt count.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = defaultChallengePrefix
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(phone string) string {
	return s.prefix + ":" + phone
}

func (s *ChallengeStore) Save(ctx context.Context, record *ChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.Phone), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	return nil
}

// Consume checks providedHash against the stored challenge. A match deletes
// the record and returns it; a mismatch counts an attempt and deletes the
// record once maxAttempts is reached.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	phone string,
	providedHash [32]byte,
	maxAttempts int,
) (*ChallengeRecord, error) {
	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(phone)},
		string(providedHash[:]),
		maxAttempts,
		time.Now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrChallengeNotFound
		case "attempts_exceeded":
			return nil, ErrChallengeAttemptsExceeded
		case "code_mismatch":
			return nil, ErrChallengeCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrChallengeRedisUnavailable)
	}

	record, decErr := decodeChallengeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, decErr)
	}

	// Lua string comparison is not constant-time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrChallengeCodeMismatch
	}

	return record, nil
}

// Delete drops any challenge for phone. Missing records are not an error.
func (s *ChallengeStore) Delete(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, s.key(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	if len(record.Phone) > 65535 {
		return nil, errors.New("challenge record phone too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersionV1)

	for _, v := range []any{record.Attempts, record.ExpiresAt, record.IssuedAt, uint16(len(record.Phone))} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString(record.Phone)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	var phoneLen uint16
	if err := binary.Read(reader, binary.BigEndian, &phoneLen); err != nil {
		return nil, err
	}
	phone := make([]byte, phoneLen)
	if _, err := io.ReadFull(reader, phone); err != nil {
		return nil, err
	}
	record.Phone = string(phone)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
