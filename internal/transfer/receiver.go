package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// File is a fully reassembled transfer.
type File struct {
	Metadata
	Data []byte
}

// Receiver reassembles one file from the messages of a Channel.
//
// Chunks carry no index; their order on the channel is their byte order.
// Chunks that arrive before the metadata are held back and replayed once it
// shows up. Redelivered chunks are not detected.
type Receiver struct {
	ch         Channel
	onProgress ProgressFunc
	onMetadata func(Metadata)
	now        func() time.Time

	mu       sync.Mutex
	meta     *Metadata
	meter    meter
	pending  [][]byte
	chunks   [][]byte
	received int64

	done   chan struct{}
	result *File
	err    error
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReceiverProgress registers a callback run after every accepted chunk.
func WithReceiverProgress(fn ProgressFunc) ReceiverOption {
	return func(r *Receiver) { r.onProgress = fn }
}

// WithMetadataHandler registers a callback run once the metadata arrives.
func WithMetadataHandler(fn func(Metadata)) ReceiverOption {
	return func(r *Receiver) { r.onMetadata = fn }
}

// NewReceiver creates a receiver. ch is used only to acknowledge the
// metadata and may be nil.
func NewReceiver(ch Channel, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		ch:   ch,
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleText processes a text message from the sender.
func (r *Receiver) HandleText(text string) error {
	_, meta, err := parseControl(text)
	if err != nil {
		slog.Debug("ignoring malformed text message", "error", err)
		return err
	}
	if meta == nil {
		return nil
	}

	r.mu.Lock()
	if r.meta != nil || r.finished() {
		r.mu.Unlock()
		slog.Debug("ignoring repeated metadata", "name", meta.Name)
		return nil
	}
	r.meta = meta
	r.meter = newMeter(meta.Size, r.now)
	r.received = 0
	r.chunks = nil
	drained := len(r.pending)
	for _, chunk := range r.pending {
		r.chunks = append(r.chunks, chunk)
		r.received += int64(len(chunk))
	}
	r.pending = nil
	p := r.meter.at(r.received)
	r.checkCompleteLocked()
	r.mu.Unlock()

	slog.Debug("metadata received", "name", meta.Name, "size", meta.Size, "pending", drained)

	if r.onMetadata != nil {
		r.onMetadata(*meta)
	}
	if r.ch != nil {
		if err := r.ch.SendText(encodeAck()); err != nil {
			slog.Debug("failed to acknowledge metadata", "error", err)
		}
	}
	if drained > 0 && r.onProgress != nil {
		r.onProgress(p)
	}
	return nil
}

// HandleBinary processes one chunk.
func (r *Receiver) HandleBinary(data []byte) error {
	chunk := append([]byte(nil), data...)

	r.mu.Lock()
	if r.finished() {
		r.mu.Unlock()
		return ErrUnexpectedChunk
	}
	if r.meta == nil {
		r.pending = append(r.pending, chunk)
		r.mu.Unlock()
		return nil
	}
	r.chunks = append(r.chunks, chunk)
	r.received += int64(len(chunk))
	p := r.meter.at(r.received)
	r.checkCompleteLocked()
	r.mu.Unlock()

	if r.onProgress != nil {
		r.onProgress(p)
	}
	return nil
}

// Close marks the channel as gone. An unfinished transfer fails.
func (r *Receiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished() {
		return
	}
	if r.meta == nil {
		r.finishLocked(nil, NewError("receive", ErrChannelClosed))
		return
	}
	r.finishLocked(nil, WrapError("receive "+r.meta.Name, ErrSizeMismatch,
		fmt.Sprintf("channel closed at %d of %d bytes", r.received, r.meta.Size)))
}

// Metadata returns the announced metadata once it has arrived.
func (r *Receiver) Metadata() (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta == nil {
		return Metadata{}, false
	}
	return *r.meta, true
}

// Progress returns how much of the announced file has arrived.
func (r *Receiver) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta == nil {
		return Progress{}
	}
	return r.meter.at(r.received)
}

// Done is closed exactly once when the transfer completes or fails.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (r *Receiver) Result() (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Wait blocks until the transfer finishes or ctx is cancelled.
func (r *Receiver) Wait(ctx context.Context) (*File, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, NewError("receive", ErrTransferCancelled)
	}
}

func (r *Receiver) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Receiver) checkCompleteLocked() {
	size := r.meta.Size
	switch {
	case r.received < size:
		return
	case r.received > size:
		r.finishLocked(nil, WrapError("receive "+r.meta.Name, ErrSizeMismatch,
			fmt.Sprintf("got %d of %d bytes", r.received, size)))
		return
	}

	data := make([]byte, 0, size)
	for _, chunk := range r.chunks {
		data = append(data, chunk...)
	}
	r.chunks = nil
	r.finishLocked(&File{Metadata: *r.meta, Data: data}, nil)
	slog.Debug("file received", "name", r.meta.Name, "size", size)
}

func (r *Receiver) finishLocked(f *File, err error) {
	r.result = f
	r.err = err
	close(r.done)
}
