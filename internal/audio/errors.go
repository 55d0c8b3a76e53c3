package audio

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization     = errors.New("engine initialization failed")
	ErrEmptyURL           = errors.New("can't stream empty URL")
	ErrAlreadyPlaying     = errors.New("already playing")
	ErrNotPlaying         = errors.New("not playing")
	ErrComponentDisabled  = errors.New("component is disabled")
	ErrPlaylist           = errors.New("playlist error")
	ErrAcquisitionTimeout = errors.New("can't start playback")
	ErrStarvation         = errors.New("stream buffer starving")
	ErrUnstableShutdown   = errors.New("unstable shutdown, restart required")
	ErrOpen               = errors.New("can't open stream")
	ErrNetURL             = errors.New("can't reach stream URL")
	ErrAlreadyRecording   = errors.New("already recording")
	ErrNotRecording       = errors.New("not recording")
	ErrNoDevice           = errors.New("no such device")
)

// StatusError is returned when a remote endpoint answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Status)
}

// Unwrap classifies every status failure as a URL error.
func (e *StatusError) Unwrap() error {
	return ErrNetURL
}

// IsNonRetryable reports whether err is a status the server will keep returning.
func IsNonRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403, 404, 410:
			return true
		}
	}
	return false
}
