package app

import (
	"errors"
	"fmt"

	"docchat/internal/realtime"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrModelCredential    = errors.New("model credential is not configured")
	ErrChatNotFound       = errors.New("chat not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentNotReady   = errors.New("document is not ready")
	ErrDocumentNotIndexed = errors.New("document has no indexed passages")
	ErrFileNotFound       = errors.New("file not found")
	ErrStaleEvent         = errors.New("stale or duplicate event")
	ErrChatBusy           = errors.New("chat is already processing a message")
	ErrMessageEmpty       = errors.New("message content is empty")

	// ErrConnectionGone is returned by Send when the client channel no
	// longer exists. The connection is already marked disconnected.
	ErrConnectionGone = realtime.ErrConnectionGone
)

// UpstreamError wraps a failure of the model or vector service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Err: err}
}
