package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Sender streams one file at a time over a Channel.
type Sender struct {
	ch         Channel
	chunkSize  int
	settle     time.Duration
	onProgress ProgressFunc
	now        func() time.Time

	acks chan struct{}
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithSettleDelay overrides SettleDelay.
func WithSettleDelay(d time.Duration) SenderOption {
	return func(s *Sender) { s.settle = d }
}

// WithSenderProgress registers a callback run after every chunk.
func WithSenderProgress(fn ProgressFunc) SenderOption {
	return func(s *Sender) { s.onProgress = fn }
}

func NewSender(ch Channel, opts ...SenderOption) *Sender {
	s := &Sender{
		ch:        ch,
		chunkSize: ChunkSize,
		settle:    SettleDelay,
		now:       time.Now,
		acks:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleText processes a text message from the receiver.
func (s *Sender) HandleText(text string) {
	c, _, err := parseControl(text)
	if err != nil {
		slog.Debug("ignoring text message", "error", err)
		return
	}
	if c.Type == TypeMetadataAck {
		select {
		case s.acks <- struct{}{}:
		default:
		}
	}
}

// Send announces meta and then streams exactly meta.Size bytes from r in
// ChunkSize slices. It returns the final progress.
func (s *Sender) Send(ctx context.Context, r io.Reader, meta Metadata) (Progress, error) {
	if meta.Size < 0 {
		return Progress{}, NewFileError("send", meta.Name, ErrInvalidFile)
	}
	if meta.MimeType == "" {
		meta.MimeType = defaultMimeType
	}

	// Drop acks left over from an earlier transfer.
	select {
	case <-s.acks:
	default:
	}

	text, err := encodeMetadata(meta)
	if err != nil {
		return Progress{}, NewError("encode metadata", err)
	}
	if err := s.ch.SendText(text); err != nil {
		return Progress{}, NewFileError("send metadata", meta.Name, err)
	}

	if err := s.waitForReceiver(ctx); err != nil {
		return Progress{}, err
	}

	m := newMeter(meta.Size, s.now)
	buf := make([]byte, s.chunkSize)
	var offset int64

	for offset < meta.Size {
		if err := ctx.Err(); err != nil {
			return m.at(offset), NewError("send", ErrTransferCancelled)
		}

		want := int(min(int64(s.chunkSize), meta.Size-offset))
		n, err := io.ReadFull(r, buf[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return m.at(offset), WrapError("read "+meta.Name, ErrSizeMismatch,
					fmt.Sprintf("source ended at %d of %d bytes", offset+int64(n), meta.Size))
			}
			return m.at(offset), NewFileError("read", meta.Name, err)
		}

		if err := s.ch.Send(buf[:n]); err != nil {
			return m.at(offset), NewFileError("send chunk", meta.Name, err)
		}
		offset += int64(n)

		if s.onProgress != nil {
			s.onProgress(m.at(offset))
		}
	}

	slog.Debug("file sent", "name", meta.Name, "size", meta.Size)
	return m.at(offset), nil
}

// waitForReceiver blocks until the metadata is acknowledged or the settle
// delay passes, whichever comes first.
func (s *Sender) waitForReceiver(ctx context.Context) error {
	if s.settle <= 0 {
		return nil
	}
	timer := time.NewTimer(s.settle)
	defer timer.Stop()

	select {
	case <-s.acks:
		slog.Debug("metadata acknowledged")
	case <-timer.C:
		slog.Debug("no metadata ack, continuing after settle delay")
	case <-ctx.Done():
		return NewError("wait for receiver", ErrTransferCancelled)
	}
	return nil
}
