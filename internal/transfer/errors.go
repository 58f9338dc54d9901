package transfer

import (
	"context"
	"errors"
	"strings"
)

// Session errors, raised while two peers find each other.
var (
	ErrPeerDisconnected  = errors.New("peer disconnected")
	ErrSignalingError    = errors.New("signaling server error")
	ErrTimeout           = errors.New("timeout")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrUnexpectedSignal  = errors.New("unexpected signal type")
	ErrTransferCancelled = errors.New("transfer cancelled by user")
)

// Channel errors from the data channel adapter.
var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrChannelNotOpen = errors.New("channel not open")
	ErrBufferTimeout  = errors.New("buffer drain timeout")
)

// Protocol errors for a single file.
var (
	ErrInvalidFile     = errors.New("invalid file")
	ErrMetadataFailed  = errors.New("failed to process metadata")
	ErrSizeMismatch    = errors.New("received size does not match announced size")
	ErrUnexpectedChunk = errors.New("chunk received after transfer completed")
)

// TransferError records which step of a transfer failed, and on which file.
// Callers match the cause with errors.Is.
type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

// Error renders "op file: cause (details)", leaving out the empty parts.
func (e *TransferError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.File != "" {
		b.WriteString(" " + e.File)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if e.Details != "" {
		b.WriteString(" (" + e.Details + ")")
	}
	return b.String()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}

// Cancelled reports whether err stems from the user stopping the transfer,
// either from the UI or by interrupting the process.
func Cancelled(err error) bool {
	return errors.Is(err, ErrTransferCancelled) || errors.Is(err, context.Canceled)
}
