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
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCodeConsumeMatch(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCodeStore(rdb, "vc")
	hash := sha256.Sum256([]byte("123456"))

	ctx := context.Background()
	if err := store.Save(ctx, "a@example.com", hash, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	remaining, err := store.Consume(ctx, "a@example.com", hash, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0 on match, got %d", remaining)
	}

	// A match destroys the record.
	if _, err := store.Consume(ctx, "a@example.com", hash, 5); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after consumption, got %v", err)
	}
}

func TestCodeConsumeMismatchCountsDown(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCodeStore(rdb, "vc")
	hash := sha256.Sum256([]byte("123456"))
	wrong := sha256.Sum256([]byte("654321"))

	ctx := context.Background()
	if err := store.Save(ctx, "a@example.com", hash, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i, want := range []int{2, 1} {
		remaining, err := store.Consume(ctx, "a@example.com", wrong, 3)
		if !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i+1, err)
		}
		if remaining != want {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i+1, want, remaining)
		}
	}

	if _, err := store.Consume(ctx, "a@example.com", wrong, 3); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected ErrCodeAttemptsExceeded, got %v", err)
	}
	// Exhaustion destroys the record, the real code included.
	if _, err := store.Consume(ctx, "a@example.com", hash, 3); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after exhaustion, got %v", err)
	}
}

func TestCodeSaveOverwrites(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCodeStore(rdb, "vc")
	first := sha256.Sum256([]byte("111111"))
	second := sha256.Sum256([]byte("222222"))

	ctx := context.Background()
	if err := store.Save(ctx, "a@example.com", first, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "a@example.com", second, time.Minute); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "a@example.com", first, 5); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected replaced code to mismatch, got %v", err)
	}
	if _, err := store.Consume(ctx, "a@example.com", second, 5); err != nil {
		t.Fatalf("expected latest code to match, got %v", err)
	}
}

func TestCodeExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewCodeStore(rdb, "vc")
	hash := sha256.Sum256([]byte("123456"))

	ctx := context.Background()
	if err := store.Save(ctx, "a@example.com", hash, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, "a@example.com", hash, 5); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected expired code not found, got %v", err)
	}
}

func TestCodeDeleteIdempotent(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCodeStore(rdb, "vc")

	ctx := context.Background()
	if err := store.Delete(ctx, "a@example.com"); err != nil {
		t.Fatalf("Delete on missing key must succeed, got %v", err)
	}
}

func TestMarkerSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewMarkerStore(rdb, "vm")

	ctx := context.Background()
	if err := store.Set(ctx, "a@example.com", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ok, err := store.Consume(ctx, "a@example.com")
	if err != nil || !ok {
		t.Fatalf("expected marker consumed, got ok=%v err=%v", ok, err)
	}
	ok, err = store.Consume(ctx, "a@example.com")
	if err != nil || ok {
		t.Fatalf("expected marker spent, got ok=%v err=%v", ok, err)
	}
}

func TestMarkerExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewMarkerStore(rdb, "vm")

	ctx := context.Background()
	if err := store.Set(ctx, "a@example.com", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	ok, err := store.Consume(ctx, "a@example.com")
	if err != nil || ok {
		t.Fatalf("expected expired marker gone, got ok=%v err=%v", ok, err)
	}
}

func TestTwoFactorConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewTwoFactorStore(rdb, "2fa")
	hash := sha256.Sum256([]byte("123456"))
	wrong := sha256.Sum256([]byte("654321"))

	ctx := context.Background()
	challenge := &TwoFactorChallenge{
		AccountID: "acct-1",
		CodeHash:  hash,
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
	}
	if err := store.Save(ctx, "ch1", challenge, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "ch1", wrong, 3); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	got, err := store.Consume(ctx, "ch1", hash, 3)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if got.AccountID != "acct-1" {
		t.Fatalf("unexpected account %q", got.AccountID)
	}

	// Consumed challenges are gone.
	if _, err := store.Consume(ctx, "ch1", hash, 3); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestTwoFactorUnknownChallenge(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewTwoFactorStore(rdb, "2fa")
	hash := sha256.Sum256([]byte("123456"))

	if _, err := store.Consume(context.Background(), "ghost", hash, 3); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}
