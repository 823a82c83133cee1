package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/user/ansari/internal/errors"
)

// decodeFunc turns one SSE event into zero or more fragments. done reports
// that the provider signalled the end of the stream.
type decodeFunc func(event SSEEvent) (fragments []Fragment, done bool, err error)

// sseStream adapts an SSE response body to FragmentStream. An idle timer
// aborts the request when no event arrives within the timeout.
type sseStream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider string
	body     io.ReadCloser
	parser   *SSEParser
	decode   decodeFunc

	idle     time.Duration
	timer    *time.Timer
	timedOut atomic.Bool

	pending   []Fragment
	done      bool
	closeOnce sync.Once
}

func newSSEStream(ctx context.Context, cancel context.CancelFunc, provider string, body io.ReadCloser, idle time.Duration, decode decodeFunc) *sseStream {
	s := &sseStream{
		ctx:      ctx,
		cancel:   cancel,
		provider: provider,
		body:     body,
		parser:   NewSSEParser(body),
		decode:   decode,
		idle:     idle,
	}
	s.timer = time.AfterFunc(idle, func() {
		s.timedOut.Store(true)
		cancel()
	})
	return s
}

// Recv returns the next fragment, or io.EOF when the stream is finished
func (s *sseStream) Recv() (Fragment, error) {
	for {
		if len(s.pending) > 0 {
			f := s.pending[0]
			s.pending = s.pending[1:]
			return f, nil
		}
		if s.done {
			return Fragment{}, io.EOF
		}

		event, err := s.parser.NextEvent()
		if err != nil {
			return Fragment{}, s.readError(err)
		}
		s.timer.Reset(s.idle)

		fragments, done, err := s.decode(event)
		if err != nil {
			return Fragment{}, err
		}
		s.pending = append(s.pending, fragments...)
		s.done = done
	}
}

func (s *sseStream) readError(err error) error {
	switch {
	case s.timedOut.Load():
		return apperrors.NewStreamError(s.provider, fmt.Sprintf("no data received for %s", s.idle), err)
	case s.ctx.Err() != nil:
		return s.ctx.Err()
	case errors.Is(err, io.EOF):
		s.done = true
		return io.EOF
	}
	return apperrors.NewStreamError(s.provider, "read failed", err)
}

// Close aborts the request and releases the response body
func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.timer.Stop()
		s.cancel()
		err = s.body.Close()
	})
	return err
}
