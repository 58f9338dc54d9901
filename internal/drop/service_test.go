package drop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codedrop/codedrop/internal/room"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestPutValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(), WithMaxSize(8))
	ctx := context.Background()

	cases := []struct {
		name string
		in   Upload
		want error
	}{
		{"empty", Upload{Kind: KindText}, ErrEmpty},
		{"too large", Upload{Kind: KindFile, Data: make([]byte, 9)}, ErrTooLarge},
		{"bad kind", Upload{Kind: "video", Data: []byte("x")}, ErrInvalidKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Put(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := svc.Put(ctx, Upload{Kind: KindFile, Data: make([]byte, 8)}); err != nil {
		t.Fatalf("payload at the limit should be accepted: %v", err)
	}
}

func TestFetchText(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	receipt, err := svc.Put(ctx, Upload{Kind: KindText, Data: []byte("hello there")})
	if err != nil {
		t.Fatal(err)
	}
	if !room.ValidCode(receipt.Code) {
		t.Fatalf("invalid code %q", receipt.Code)
	}
	if receipt.MaxDevices != DefaultMaxDevices {
		t.Fatalf("unexpected max devices %d", receipt.MaxDevices)
	}

	got, err := svc.Fetch(ctx, receipt.Code, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != "hello there" || got.Kind != KindText {
		t.Fatalf("unexpected entry %+v", got.Entry)
	}
	if got.Remaining != DefaultMaxDevices-1 {
		t.Fatalf("expected %d remaining, got %d", DefaultMaxDevices-1, got.Remaining)
	}
}

// fillStore takes every code, with entries expiring at expires(code).
func fillStore(t *testing.T, store Store, expires func(code string) time.Time) {
	t.Helper()
	ctx := context.Background()
	for n := room.MinCode; n <= room.MaxCode; n++ {
		code := fmt.Sprint(n)
		e := &Entry{
			Code:       code,
			Kind:       KindText,
			Size:       1,
			Data:       []byte("x"),
			ExpiresAt:  expires(code),
			Devices:    []string{},
			MaxDevices: DefaultMaxDevices,
		}
		if err := store.Put(ctx, e); err != nil {
			t.Fatalf("put %s: %v", code, err)
		}
	}
}

func TestPutWhenAllCodesTaken(t *testing.T) {
	c := newClock()
	store := NewMemoryStore()
	fillStore(t, store, func(string) time.Time { return c.Now().Add(time.Hour) })
	svc := NewService(store, WithClock(c.Now))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Put(ctx, Upload{Kind: KindText, Data: []byte("late")})
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, room.ErrExhausted) {
			t.Fatalf("expected ErrExhausted, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Put did not return with every code taken")
	}

	if _, err := svc.Fetch(ctx, "4821", "dev"); err != nil {
		t.Fatalf("fetch after a failed put: %v", err)
	}
}

func TestPutReclaimsExpiredCode(t *testing.T) {
	c := newClock()
	store := NewMemoryStore()
	fillStore(t, store, func(code string) time.Time {
		if code == "4821" {
			return c.Now().Add(-time.Second)
		}
		return c.Now().Add(time.Hour)
	})
	svc := NewService(store, WithClock(c.Now))

	receipt, err := svc.Put(context.Background(), Upload{Kind: KindText, Data: []byte("new")})
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Code != "4821" {
		t.Fatalf("expected the expired code 4821 to be reused, got %s", receipt.Code)
	}
}

func TestFetchUnknownCode(t *testing.T) {
	svc := NewService(NewMemoryStore())
	if _, err := svc.Fetch(context.Background(), "1234", "dev"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchExpired(t *testing.T) {
	c := newClock()
	store := NewMemoryStore()
	svc := NewService(store, WithClock(c.Now))
	ctx := context.Background()

	receipt, _ := svc.Put(ctx, Upload{Kind: KindText, Data: []byte("x")})
	c.Advance(DefaultTTL)

	if _, err := svc.Fetch(ctx, receipt.Code, "dev"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// The expired entry is removed on first sight.
	if _, err := store.Get(ctx, receipt.Code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be deleted, got %v", err)
	}
}

func TestDeviceLimit(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, WithMaxDevices(3))
	ctx := context.Background()

	receipt, _ := svc.Put(ctx, Upload{Kind: KindFile, Name: "a.bin", Data: []byte{1, 2, 3}})

	for i := 0; i < 2; i++ {
		if _, err := svc.Fetch(ctx, receipt.Code, fmt.Sprintf("dev-%d", i)); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}

	// Fetching again from a known device does not use a slot.
	again, err := svc.Fetch(ctx, receipt.Code, "dev-0")
	if err != nil {
		t.Fatal(err)
	}
	if again.Remaining != 1 {
		t.Fatalf("expected one slot left, got %d", again.Remaining)
	}

	last, err := svc.Fetch(ctx, receipt.Code, "dev-2")
	if err != nil {
		t.Fatal(err)
	}
	if last.Remaining != 0 || !bytes.Equal(last.Data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected last fetch %+v", last)
	}

	// Reaching the cap removes the entry.
	if _, err := svc.Fetch(ctx, receipt.Code, "dev-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after cap, got %v", err)
	}
}

func TestDeviceLimitWithoutDeletion(t *testing.T) {
	// An entry written by an older version may sit at the cap.
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	e := &Entry{
		Code:       "4242",
		Kind:       KindText,
		Data:       []byte("x"),
		Size:       1,
		ExpiresAt:  time.Now().Add(time.Hour),
		Devices:    []string{"a", "b"},
		MaxDevices: 2,
	}
	if err := store.Put(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Fetch(ctx, "4242", "c"); !errors.Is(err, ErrDeviceLimit) {
		t.Fatalf("expected ErrDeviceLimit, got %v", err)
	}
	if _, err := svc.Fetch(ctx, "4242", "a"); err != nil {
		t.Fatalf("known device should still fetch: %v", err)
	}
}

func TestConcurrentFetchRespectsCap(t *testing.T) {
	svc := NewService(NewMemoryStore(), WithMaxDevices(5))
	ctx := context.Background()
	receipt, _ := svc.Put(ctx, Upload{Kind: KindText, Data: []byte("x")})

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Fetch(ctx, receipt.Code, fmt.Sprintf("dev-%d", i)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if ok != 5 {
		t.Fatalf("expected exactly 5 successful fetches, got %d", ok)
	}
}

func TestPurge(t *testing.T) {
	c := newClock()
	svc := NewService(NewMemoryStore(), WithClock(c.Now))
	ctx := context.Background()

	svc.Put(ctx, Upload{Kind: KindText, Data: []byte("a")})
	c.Advance(time.Minute)
	fresh, _ := svc.Put(ctx, Upload{Kind: KindText, Data: []byte("b")})
	c.Advance(90 * time.Second)

	n, err := svc.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one purged entry, got %d", n)
	}
	if _, err := svc.Fetch(ctx, fresh.Code, "dev"); err != nil {
		t.Fatalf("fresh entry should survive purge: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "drops.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	e := &Entry{
		Code:       "1234",
		Kind:       KindFile,
		Name:       "photo.jpg",
		MimeType:   "image/jpeg",
		Size:       4,
		Data:       []byte{0xff, 0xd8, 0xff, 0xe0},
		CreatedAt:  now,
		ExpiresAt:  now.Add(DefaultTTL),
		Devices:    []string{},
		MaxDevices: DefaultMaxDevices,
	}
	if err := store.Put(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, e); !errors.Is(err, ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}

	got, err := store.Get(ctx, "1234")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != e.Name || !bytes.Equal(got.Data, e.Data) || !got.ExpiresAt.Equal(e.ExpiresAt) {
		t.Fatalf("unexpected entry %+v", got)
	}

	got.Devices = append(got.Devices, "dev-1")
	if err := store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Get(ctx, "1234")
	if len(got.Devices) != 1 || got.Devices[0] != "dev-1" {
		t.Fatalf("update not persisted: %v", got.Devices)
	}

	if err := store.Update(ctx, &Entry{Code: "9999"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update of missing code, got %v", err)
	}

	n, err := store.PurgeExpired(ctx, now.Add(DefaultTTL))
	if err != nil || n != 1 {
		t.Fatalf("expected one purged row, got %d (%v)", n, err)
	}
	if _, err := store.Get(ctx, "1234"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "drops.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	svc := NewService(store, WithMaxDevices(2))
	receipt, err := svc.Put(ctx, Upload{Kind: KindText, Data: []byte("over sqlite")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Fetch(ctx, receipt.Code, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Fetch(ctx, receipt.Code, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Fetch(ctx, receipt.Code, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after cap, got %v", err)
	}
}
