package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/congo-pay/custody/internal/logging"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry{Attempts: 5, Wait: time.Millisecond}.do(context.Background(), logging.Discard(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	down := errors.New("connection refused")
	err := Retry{Attempts: 2, Wait: time.Millisecond}.do(context.Background(), logging.Discard(), "postgres", func(context.Context) error {
		return down
	})
	if !errors.Is(err, down) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr(), Retry{Attempts: 1}, logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), "", DefaultRetry, logging.Discard()); err == nil {
		t.Fatalf("expected an error for an empty url")
	}
}
