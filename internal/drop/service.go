package drop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codedrop/codedrop/internal/metrics"
	"github.com/codedrop/codedrop/internal/room"
)

const (
	DefaultTTL        = 2 * time.Minute
	DefaultMaxSize    = 10 << 20
	DefaultMaxDevices = 5

	janitorInterval = time.Minute
	putAttempts     = 16
)

// Upload is a new payload to store.
type Upload struct {
	Kind     Kind
	Name     string
	MimeType string
	Data     []byte
}

// Receipt tells the uploader how to share a stored drop.
type Receipt struct {
	Code       string    `json:"code"`
	ExpiresAt  time.Time `json:"expiresAt"`
	MaxDevices int       `json:"maxDevices"`
}

// Fetched is an entry returned to a device along with the slots still open.
type Fetched struct {
	*Entry
	Remaining int
}

// Service implements store-and-forward drops on top of a Store.
type Service struct {
	store      Store
	metrics    *metrics.Metrics
	ttl        time.Duration
	maxSize    int64
	maxDevices int
	now        func() time.Time

	// mu serialises fetches so concurrent devices never over-consume slots.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithMaxSize(n int64) Option {
	return func(s *Service) { s.maxSize = n }
}

func WithMaxDevices(n int) Option {
	return func(s *Service) { s.maxDevices = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		ttl:        DefaultTTL,
		maxSize:    DefaultMaxSize,
		maxDevices: DefaultMaxDevices,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxSize returns the largest payload accepted.
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// Put stores u under a fresh code.
func (s *Service) Put(ctx context.Context, u Upload) (*Receipt, error) {
	switch u.Kind {
	case KindText, KindFile:
	default:
		return nil, ErrInvalidKind
	}
	if len(u.Data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(u.Data)) > s.maxSize {
		return nil, ErrTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := &Entry{
		Kind:       u.Kind,
		Name:       u.Name,
		MimeType:   u.MimeType,
		Size:       int64(len(u.Data)),
		Data:       u.Data,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		Devices:    []string{},
		MaxDevices: s.maxDevices,
	}

	purged := false
	for range putAttempts {
		code, err := room.FindFreeCode(func(code string) bool {
			_, err := s.store.Get(ctx, code)
			return err == nil
		})
		if errors.Is(err, room.ErrExhausted) && !purged {
			// Expired entries still hold their codes until the janitor runs.
			purged = true
			if _, err := s.store.PurgeExpired(ctx, now); err != nil {
				return nil, fmt.Errorf("purge drops: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		e.Code = code
		err = s.store.Put(ctx, e)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store drop: %w", err)
		}
		s.metrics.IncDropStored()
		slog.Info("drop stored", "code", e.Code, "kind", e.Kind, "size", e.Size)
		return &Receipt{Code: e.Code, ExpiresAt: e.ExpiresAt, MaxDevices: e.MaxDevices}, nil
	}
	return nil, room.ErrExhausted
}

// Fetch returns the entry for code on behalf of device. A device that already
// fetched the entry gets it again without using up a slot.
func (s *Service) Fetch(ctx context.Context, code, device string) (*Fetched, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	if e.Expired(s.now()) {
		if err := s.store.Delete(ctx, code); err != nil {
			slog.Warn("failed to delete expired drop", "code", code, "error", err)
		}
		return nil, ErrExpired
	}

	if e.HasDevice(device) {
		return &Fetched{Entry: e, Remaining: e.Remaining()}, nil
	}
	if len(e.Devices) >= e.MaxDevices {
		return nil, ErrDeviceLimit
	}

	e.Devices = append(e.Devices, device)
	if len(e.Devices) >= e.MaxDevices {
		err = s.store.Delete(ctx, code)
	} else {
		err = s.store.Update(ctx, e)
	}
	if err != nil {
		return nil, fmt.Errorf("record device: %w", err)
	}

	s.metrics.IncDropFetched()
	slog.Info("drop fetched", "code", code, "devices", len(e.Devices))
	return &Fetched{Entry: e, Remaining: e.Remaining()}, nil
}

// Purge removes expired entries.
func (s *Service) Purge(ctx context.Context) (int, error) {
	return s.store.PurgeExpired(ctx, s.now())
}

// Run purges expired entries every minute until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				slog.Warn("drop purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("purged expired drops", "count", n)
			}
		}
	}
}
