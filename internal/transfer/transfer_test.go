package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// loopback delivers every message synchronously to the handlers.
type loopback struct {
	mu       sync.Mutex
	onText   func(string)
	onBinary func([]byte)
	sizes    []int
}

func (l *loopback) SendText(text string) error {
	if l.onText != nil {
		l.onText(text)
	}
	return nil
}

func (l *loopback) Send(data []byte) error {
	l.mu.Lock()
	l.sizes = append(l.sizes, len(data))
	l.mu.Unlock()
	if l.onBinary != nil {
		l.onBinary(data)
	}
	return nil
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func split(data []byte, size int) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		n := min(size, len(data))
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

func metadataText(t *testing.T, m Metadata) string {
	t.Helper()
	text, err := encodeMetadata(m)
	if err != nil {
		t.Fatal(err)
	}
	return text
}

// connect wires a sender and receiver back to back.
func connect(senderOpts []SenderOption, receiverOpts []ReceiverOption) (*Sender, *Receiver, *loopback) {
	toSender := &loopback{}
	recv := NewReceiver(toSender, receiverOpts...)
	toReceiver := &loopback{
		onText:   func(s string) { recv.HandleText(s) },
		onBinary: func(b []byte) { recv.HandleBinary(b) },
	}
	send := NewSender(toReceiver, senderOpts...)
	toSender.onText = send.HandleText
	return send, recv, toReceiver
}

func TestRoundTripWithAck(t *testing.T) {
	data := randomBytes(t, 5*ChunkSize+1234)
	meta := Metadata{Name: "photo.jpg", Size: int64(len(data)), MimeType: "image/jpeg"}

	var updates []Progress
	send, recv, wire := connect(
		[]SenderOption{WithSettleDelay(10 * time.Second), WithSenderProgress(func(p Progress) { updates = append(updates, p) })},
		nil,
	)

	start := time.Now()
	final, err := send.Send(context.Background(), bytes.NewReader(data), meta)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("sender waited for the settle delay despite an ack")
	}
	if final.Transferred != meta.Size || final.Fraction() != 1 {
		t.Fatalf("unexpected final progress %+v", final)
	}

	file, err := recv.Wait(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(file.Data, data) {
		t.Fatal("received data differs from sent data")
	}
	if file.Name != meta.Name || file.MimeType != meta.MimeType || file.Size != meta.Size {
		t.Fatalf("unexpected metadata %+v", file.Metadata)
	}

	if len(wire.sizes) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(wire.sizes))
	}
	for i, n := range wire.sizes[:5] {
		if n != ChunkSize {
			t.Fatalf("chunk %d has size %d", i, n)
		}
	}
	if wire.sizes[5] != 1234 {
		t.Fatalf("last chunk has size %d", wire.sizes[5])
	}

	if len(updates) != 6 {
		t.Fatalf("expected a progress update per chunk, got %d", len(updates))
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].Transferred <= updates[i-1].Transferred {
			t.Fatal("progress must increase monotonically")
		}
	}
}

func TestSettleDelayWithoutAck(t *testing.T) {
	recv := NewReceiver(nil)
	wire := &loopback{
		onText:   func(s string) { recv.HandleText(s) },
		onBinary: func(b []byte) { recv.HandleBinary(b) },
	}
	send := NewSender(wire, WithSettleDelay(100*time.Millisecond))

	data := []byte("hello")
	start := time.Now()
	if _, err := send.Send(context.Background(), bytes.NewReader(data), Metadata{Name: "a.txt", Size: 5}); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatal("sender did not wait for the settle delay")
	}

	file, err := recv.Result()
	if err != nil || string(file.Data) != "hello" {
		t.Fatalf("unexpected result %v %v", file, err)
	}
	if file.MimeType != defaultMimeType {
		t.Fatalf("expected default MIME type, got %q", file.MimeType)
	}
}

func TestSendCancelledWhileWaiting(t *testing.T) {
	send := NewSender(&loopback{}, WithSettleDelay(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := send.Send(ctx, bytes.NewReader([]byte("x")), Metadata{Name: "x", Size: 1})
	if !errors.Is(err, ErrTransferCancelled) {
		t.Fatalf("expected ErrTransferCancelled, got %v", err)
	}
}

func TestChunksBeforeMetadata(t *testing.T) {
	data := randomBytes(t, 3*ChunkSize+10)
	chunks := split(data, ChunkSize)
	meta := Metadata{Name: "early.bin", Size: int64(len(data))}

	cases := []struct {
		name  string
		early int
	}{
		{"metadata first", 0},
		{"one chunk early", 1},
		{"most chunks early", 3},
		{"all chunks early", len(chunks)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recv := NewReceiver(nil)

			for _, c := range chunks[:tc.early] {
				if err := recv.HandleBinary(c); err != nil {
					t.Fatal(err)
				}
			}
			if err := recv.HandleText(metadataText(t, meta)); err != nil {
				t.Fatal(err)
			}
			for _, c := range chunks[tc.early:] {
				if err := recv.HandleBinary(c); err != nil {
					t.Fatal(err)
				}
			}

			file, err := recv.Wait(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(file.Data, data) {
				t.Fatal("reassembled data differs")
			}

			if err := recv.HandleBinary([]byte("late")); !errors.Is(err, ErrUnexpectedChunk) {
				t.Fatalf("expected ErrUnexpectedChunk, got %v", err)
			}
			again, _ := recv.Result()
			if !bytes.Equal(again.Data, data) {
				t.Fatal("late chunk changed the result")
			}
			select {
			case <-recv.Done():
			default:
				t.Fatal("done channel should stay closed")
			}
		})
	}
}

func TestRepeatedMetadataIsIgnored(t *testing.T) {
	recv := NewReceiver(nil)
	recv.HandleText(metadataText(t, Metadata{Name: "first", Size: 4}))
	recv.HandleBinary([]byte("ab"))
	recv.HandleText(metadataText(t, Metadata{Name: "second", Size: 2}))
	recv.HandleBinary([]byte("cd"))

	file, err := recv.Result()
	if err != nil {
		t.Fatal(err)
	}
	if file.Name != "first" || string(file.Data) != "abcd" {
		t.Fatalf("unexpected file %+v", file)
	}
}

func TestBrowserMetadataShape(t *testing.T) {
	recv := NewReceiver(nil)
	if err := recv.HandleText(`{"type":"image/png","name":"a.png","size":3}`); err != nil {
		t.Fatal(err)
	}
	meta, ok := recv.Metadata()
	if !ok {
		t.Fatal("metadata not recognised")
	}
	if meta.MimeType != "image/png" || meta.Name != "a.png" || meta.Size != 3 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

// Redelivered chunks are counted again. A duplicate of equal length takes the
// place of the missing tail and the transfer completes with corrupted data.
func TestDuplicateChunkIsNotDetected(t *testing.T) {
	a := bytes.Repeat([]byte{'a'}, 8)
	b := bytes.Repeat([]byte{'b'}, 8)

	recv := NewReceiver(nil)
	recv.HandleText(metadataText(t, Metadata{Name: "dup", Size: 16}))
	recv.HandleBinary(a)
	recv.HandleBinary(a)

	file, err := recv.Result()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(file.Data, append(a, a...)) {
		t.Fatalf("unexpected data %q", file.Data)
	}
	if err := recv.HandleBinary(b); !errors.Is(err, ErrUnexpectedChunk) {
		t.Fatalf("expected the real tail to be rejected, got %v", err)
	}
}

func TestOvershootIsSizeMismatch(t *testing.T) {
	recv := NewReceiver(nil)
	recv.HandleText(metadataText(t, Metadata{Name: "over", Size: 4}))
	recv.HandleBinary([]byte("abc"))
	recv.HandleBinary([]byte("de"))

	if _, err := recv.Result(); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestCloseBeforeCompletion(t *testing.T) {
	recv := NewReceiver(nil)
	recv.HandleText(metadataText(t, Metadata{Name: "short", Size: 10}))
	recv.HandleBinary([]byte("abc"))
	recv.Close()

	if _, err := recv.Result(); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}

	idle := NewReceiver(nil)
	idle.Close()
	if _, err := idle.Result(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestCloseAfterCompletionKeepsResult(t *testing.T) {
	recv := NewReceiver(nil)
	recv.HandleText(metadataText(t, Metadata{Name: "ok", Size: 2}))
	recv.HandleBinary([]byte("ok"))
	recv.Close()

	file, err := recv.Result()
	if err != nil || string(file.Data) != "ok" {
		t.Fatalf("unexpected result %v %v", file, err)
	}
}

func TestZeroSizeFile(t *testing.T) {
	send, recv, wire := connect([]SenderOption{WithSettleDelay(time.Second)}, nil)
	if _, err := send.Send(context.Background(), bytes.NewReader(nil), Metadata{Name: "empty", Size: 0}); err != nil {
		t.Fatal(err)
	}
	if len(wire.sizes) != 0 {
		t.Fatalf("expected no chunks, got %d", len(wire.sizes))
	}
	file, err := recv.Result()
	if err != nil || len(file.Data) != 0 {
		t.Fatalf("unexpected result %v %v", file, err)
	}
}

func TestShortSourceIsSizeMismatch(t *testing.T) {
	send, _, _ := connect([]SenderOption{WithSettleDelay(time.Second)}, nil)
	_, err := send.Send(context.Background(), bytes.NewReader([]byte("abc")), Metadata{Name: "x", Size: 10})
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestSendStopsAtAnnouncedSize(t *testing.T) {
	send, recv, _ := connect([]SenderOption{WithSettleDelay(time.Second)}, nil)
	src := bytes.NewReader([]byte("abcdefgh"))
	if _, err := send.Send(context.Background(), src, Metadata{Name: "x", Size: 4}); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(src)
	if string(rest) != "efgh" {
		t.Fatalf("sender read past the announced size, left %q", rest)
	}
	file, _ := recv.Result()
	if string(file.Data) != "abcd" {
		t.Fatalf("unexpected data %q", file.Data)
	}
}

func TestMalformedText(t *testing.T) {
	recv := NewReceiver(nil)
	for _, text := range []string{`not json`, `{"type":"file-metadata"}`, `{"type":"file-metadata","name":"x","size":-1}`} {
		if err := recv.HandleText(text); !errors.Is(err, ErrMetadataFailed) {
			t.Errorf("%s: expected ErrMetadataFailed, got %v", text, err)
		}
	}
	if err := recv.HandleText(`{"type":"something-else"}`); err != nil {
		t.Errorf("unknown control messages should be ignored, got %v", err)
	}
	if _, ok := recv.Metadata(); ok {
		t.Fatal("no metadata should have been stored")
	}
}

func TestProgressMath(t *testing.T) {
	p := Progress{Transferred: 512, Total: 1024, Elapsed: 2 * time.Second}
	if p.Fraction() != 0.5 {
		t.Fatalf("fraction = %v", p.Fraction())
	}
	if p.BytesPerSecond() != 256 {
		t.Fatalf("throughput = %v", p.BytesPerSecond())
	}
	if (Progress{}).BytesPerSecond() != 0 {
		t.Fatal("zero elapsed must not divide by zero")
	}
	if (Progress{Total: 0}).Fraction() != 1 {
		t.Fatal("empty transfer counts as complete")
	}
}

func TestTransferErrorMessage(t *testing.T) {
	cases := []struct {
		err  *TransferError
		want string
	}{
		{NewError("receive", ErrChannelClosed), "receive: channel closed"},
		{NewFileError("write", "a.txt", ErrInvalidFile), "write a.txt: invalid file"},
		{WrapError("join room", ErrSignalingError, "Room is full"), "join room: signaling server error (Room is full)"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("got %q, want %q", got, tc.want)
		}
	}
}

func TestCancelled(t *testing.T) {
	if !Cancelled(NewError("send", ErrTransferCancelled)) {
		t.Fatal("wrapped ErrTransferCancelled should count as cancelled")
	}
	if !Cancelled(NewError("wait", context.Canceled)) {
		t.Fatal("context.Canceled should count as cancelled")
	}
	if Cancelled(NewError("send", ErrSizeMismatch)) {
		t.Fatal("a size mismatch is not a cancellation")
	}
}
