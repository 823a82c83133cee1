package agents

import (
	"context"
	"errors"
	"strings"
)

// Reply streams the text of one processing loop. Tokens is closed when the
// loop ends; Err then reports how it ended. A caller that stops reading
// early must call Close so the loop can stop.
//
// Text is delivered as the model produces it. When a round breaks off and
// is retried, the text already delivered from the broken round is not
// retracted and the retried round's text follows it. History only keeps
// the completed round.
type Reply struct {
	tokens chan string
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// startReply runs fn on its own goroutine. emit blocks until the consumer
// takes the text or ctx is done.
func startReply(ctx context.Context, fn func(ctx context.Context, emit func(string) error) error) *Reply {
	ctx, cancel := context.WithCancel(ctx)
	r := &Reply{
		tokens: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(r.done)
		defer cancel()
		defer close(r.tokens)

		r.err = fn(ctx, func(s string) error {
			select {
			case r.tokens <- s:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return r
}

// failedReply returns a Reply that yields nothing and ends with err
func failedReply(err error) *Reply {
	r := &Reply{
		tokens: make(chan string),
		done:   make(chan struct{}),
		cancel: func() {},
		err:    err,
	}
	close(r.tokens)
	close(r.done)
	return r
}

// Tokens returns the text increments in production order
func (r *Reply) Tokens() <-chan string {
	return r.tokens
}

// Done is closed once the loop has finished
func (r *Reply) Done() <-chan struct{} {
	return r.done
}

// Err waits for the loop to finish and returns its error
func (r *Reply) Err() error {
	<-r.done
	return r.err
}

// Close abandons the reply and waits for the loop to stop. Cancellation
// caused by Close itself is not reported.
func (r *Reply) Close() error {
	r.cancel()
	<-r.done
	if errors.Is(r.err, context.Canceled) {
		return nil
	}
	return r.err
}

// Collect drains the reply and returns the concatenated text
func (r *Reply) Collect() (string, error) {
	var b strings.Builder
	for s := range r.tokens {
		b.WriteString(s)
	}
	return b.String(), r.Err()
}
