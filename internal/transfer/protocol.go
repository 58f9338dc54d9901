package transfer

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// ChunkSize is the payload size of every binary chunk except the last.
	ChunkSize = 16 * 1024

	// SettleDelay is how long the sender waits after the metadata when the
	// receiver never acknowledges it.
	SettleDelay = 2 * time.Second

	TypeFileMetadata = "file-metadata"
	TypeMetadataAck  = "metadata-ack"

	defaultMimeType = "application/octet-stream"
)

// Channel is a reliable, ordered, message-based pipe to the peer. Text and
// binary messages are delivered whole and in send order. Send must not keep
// a reference to data after it returns.
type Channel interface {
	SendText(text string) error
	Send(data []byte) error
}

// Metadata describes the file announced before any chunk.
type Metadata struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// control is the JSON shape of every text message on the channel.
type control struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Size     *int64 `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func encodeMetadata(m Metadata) (string, error) {
	size := m.Size
	data, err := json.Marshal(control{
		Type:     TypeFileMetadata,
		Name:     m.Name,
		Size:     &size,
		MimeType: m.MimeType,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeAck() string {
	return `{"type":"` + TypeMetadataAck + `"}`
}

// parseControl decodes a text message. Browser senders put the MIME type in
// the "type" field and overwrite the "file-metadata" marker, so any message
// carrying a name and a size is treated as metadata.
func parseControl(text string) (control, *Metadata, error) {
	var c control
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return control{}, nil, fmt.Errorf("%w: %v", ErrMetadataFailed, err)
	}
	if c.Type == TypeMetadataAck {
		return c, nil, nil
	}
	if c.Name == "" || c.Size == nil {
		if c.Type == TypeFileMetadata {
			return c, nil, fmt.Errorf("%w: missing name or size", ErrMetadataFailed)
		}
		return c, nil, nil
	}
	if *c.Size < 0 {
		return c, nil, fmt.Errorf("%w: negative size", ErrMetadataFailed)
	}

	m := &Metadata{Name: c.Name, Size: *c.Size, MimeType: c.MimeType}
	if m.MimeType == "" && c.Type != TypeFileMetadata {
		m.MimeType = c.Type
	}
	if m.MimeType == "" {
		m.MimeType = defaultMimeType
	}
	return c, m, nil
}
