package drop

import (
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the payload type of a drop.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

var (
	ErrNotFound    = errors.New("invalid code or drop expired")
	ErrExpired     = errors.New("drop has expired")
	ErrDeviceLimit = errors.New("device limit reached")
	ErrTooLarge    = errors.New("payload too large")
	ErrEmpty       = errors.New("nothing to drop")
	ErrInvalidKind = errors.New("invalid drop kind")
	ErrCodeTaken   = errors.New("code already in use")
)

// Entry is a stored payload waiting to be fetched.
type Entry struct {
	Code       string    `msgpack:"code"`
	Kind       Kind      `msgpack:"kind"`
	Name       string    `msgpack:"name,omitempty"`
	MimeType   string    `msgpack:"mime_type,omitempty"`
	Size       int64     `msgpack:"size"`
	Data       []byte    `msgpack:"data"`
	CreatedAt  time.Time `msgpack:"created_at"`
	ExpiresAt  time.Time `msgpack:"expires_at"`
	Devices    []string  `msgpack:"devices"`
	MaxDevices int       `msgpack:"max_devices"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// HasDevice reports whether device already fetched this entry.
func (e *Entry) HasDevice(device string) bool {
	for _, d := range e.Devices {
		if d == device {
			return true
		}
	}
	return false
}

// Remaining returns how many more devices may fetch the entry.
func (e *Entry) Remaining() int {
	return max(0, e.MaxDevices-len(e.Devices))
}

func encodeEntry(e *Entry) ([]byte, error) {
	return msgpack.Marshal(e)
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
