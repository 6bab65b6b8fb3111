package handler

import (
	"errors"
	"net/http"
	"time"
)

// streamWriter writes SSE frames to the response and flushes after each one.
// Every write gets its own deadline so a stalled client fails instead of
// blocking the publisher.
type streamWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

func newStreamWriter(w http.ResponseWriter, timeout time.Duration) *streamWriter {
	return &streamWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		timeout: timeout,
	}
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if s.timeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return 0, err
		}
	}

	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := s.rc.Flush(); err != nil {
		return n, err
	}
	return n, nil
}
