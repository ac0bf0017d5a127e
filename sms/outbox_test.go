package sms

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDevOutboxLatest(t *testing.T) {
	o := NewDevOutbox(5 * time.Minute)
	ctx := context.Background()

	if _, ok := o.Latest("+919876543210"); ok {
		t.Fatal("expected no message before send")
	}

	_ = o.SendOTP(ctx, "+919876543210", "111111")
	_ = o.SendOTP(ctx, "+919876543210", "222222")

	msg, ok := o.Latest("+919876543210")
	if !ok {
		t.Fatal("expected message after send")
	}
	if msg.Code != "222222" {
		t.Fatalf("expected latest code, got %q", msg.Code)
	}
}

func TestDevOutboxExpiry(t *testing.T) {
	o := NewDevOutbox(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.nowF = func() time.Time { return now }

	_ = o.SendOTP(context.Background(), "+919876543210", "123456")
	now = now.Add(2 * time.Minute)

	if _, ok := o.Latest("+919876543210"); ok {
		t.Fatal("expected expired message to be gone")
	}
	o.mu.RLock()
	_, still := o.m["+919876543210"]
	o.mu.RUnlock()
	if still {
		t.Fatal("expected expired entry to be deleted")
	}
}

func TestDevOutboxListen(t *testing.T) {
	o := NewDevOutbox(time.Minute)
	ch, stop := o.Listen(4)

	_ = o.SendOTP(context.Background(), "+919876543210", "654321")

	select {
	case msg := <-ch:
		if msg.Code != "654321" || msg.Phone != "+919876543210" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected notification")
	}

	stop()
	stop()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	_ = o.SendOTP(context.Background(), "+919876543210", "000000")
}

func TestDevOutboxConcurrent(t *testing.T) {
	o := NewDevOutbox(time.Minute)
	_, stop := o.Listen(1)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = o.SendOTP(context.Background(), "+919876543210", "123456")
				o.Latest("+919876543210")
			}
		}()
	}
	wg.Wait()
}
