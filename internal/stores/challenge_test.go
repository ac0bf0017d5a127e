package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func saveChallenge(t *testing.T, s *ChallengeStore, phone, code string, ttl time.Duration) {
	t.Helper()
	now := time.Now()
	err := s.Save(context.Background(), &ChallengeRecord{
		Phone:     phone,
		CodeHash:  sha256.Sum256([]byte(code)),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}, ttl)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestChallengeRecordRoundTrip(t *testing.T) {
	in := &ChallengeRecord{
		Phone:     "+919876543210",
		CodeHash:  sha256.Sum256([]byte("123456")),
		IssuedAt:  1700000000,
		ExpiresAt: 1700000300,
		Attempts:  2,
	}
	data, err := encodeChallengeRecord(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	out, err := decodeChallengeRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}

	data[0] = 9
	if _, err := decodeChallengeRecord(data); err == nil {
		t.Fatal("expected version error")
	}
}

func TestChallengeConsumeSuccessIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()
	phone := "+919876543210"

	saveChallenge(t, s, phone, "123456", 5*time.Minute)

	rec, err := s.Consume(ctx, phone, sha256.Sum256([]byte("123456")), 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if rec.Phone != phone {
		t.Fatalf("expected phone %s, got %s", phone, rec.Phone)
	}

	_, err = s.Consume(ctx, phone, sha256.Sum256([]byte("123456")), 5)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound on reuse, got %v", err)
	}
}

func TestChallengeConsumeCountsAttempts(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "test")
	ctx := context.Background()
	phone := "+919876543210"

	saveChallenge(t, s, phone, "123456", 5*time.Minute)
	wrong := sha256.Sum256([]byte("000000"))

	for i := 0; i < 2; i++ {
		if _, err := s.Consume(ctx, phone, wrong, 3); !errors.Is(err, ErrChallengeCodeMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i+1, err)
		}
	}
	if ttl := mr.TTL("test:" + phone); ttl <= 0 {
		t.Fatalf("expected TTL preserved after mismatch, got %v", ttl)
	}

	if _, err := s.Consume(ctx, phone, wrong, 3); !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	if mr.Exists("test:" + phone) {
		t.Fatal("expected record deleted after attempts exceeded")
	}
	if _, err := s.Consume(ctx, phone, sha256.Sum256([]byte("123456")), 3); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected not found after lockout, got %v", err)
	}
}

func TestChallengeSaveReplacesPrevious(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()
	phone := "+919876543210"

	saveChallenge(t, s, phone, "111111", time.Minute)
	if _, err := s.Consume(ctx, phone, sha256.Sum256([]byte("000000")), 5); !errors.Is(err, ErrChallengeCodeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	saveChallenge(t, s, phone, "222222", time.Minute)

	if _, err := s.Consume(ctx, phone, sha256.Sum256([]byte("111111")), 5); !errors.Is(err, ErrChallengeCodeMismatch) {
		t.Fatalf("expected old code rejected, got %v", err)
	}
	rec, err := s.Consume(ctx, phone, sha256.Sum256([]byte("222222")), 5)
	if err != nil {
		t.Fatalf("expected new code accepted, got %v", err)
	}
	if rec.Attempts != 1 {
		t.Fatalf("expected attempts reset by resend then one miss, got %d", rec.Attempts)
	}
}

func TestChallengeExpiredByClock(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()
	phone := "+919876543210"

	past := time.Now().Add(-time.Minute)
	err := s.Save(ctx, &ChallengeRecord{
		Phone:     phone,
		CodeHash:  sha256.Sum256([]byte("123456")),
		IssuedAt:  past.Add(-time.Minute).Unix(),
		ExpiresAt: past.Unix(),
	}, time.Hour)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := s.Consume(ctx, phone, sha256.Sum256([]byte("123456")), 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected expired record to be not found, got %v", err)
	}
}

func TestChallengeDeleteAndRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()
	phone := "+919876543210"

	saveChallenge(t, s, phone, "123456", time.Minute)
	if err := s.Delete(ctx, phone); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, phone); err != nil {
		t.Fatalf("Delete of missing record failed: %v", err)
	}

	mr.Close()
	if _, err := s.Consume(ctx, phone, sha256.Sum256([]byte("123456")), 5); !errors.Is(err, ErrChallengeRedisUnavailable) {
		t.Fatalf("expected redis unavailable, got %v", err)
	}
}
