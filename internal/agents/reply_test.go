package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReply_Collect(t *testing.T) {
	r := startReply(context.Background(), func(ctx context.Context, emit func(string) error) error {
		for _, s := range []string{"a", "b", "c"} {
			if err := emit(s); err != nil {
				return err
			}
		}
		return nil
	})

	text, err := r.Collect()
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestReply_ErrAfterTokens(t *testing.T) {
	boom := errors.New("boom")
	r := startReply(context.Background(), func(ctx context.Context, emit func(string) error) error {
		_ = emit("partial")
		return boom
	})

	var got []string
	for s := range r.Tokens() {
		got = append(got, s)
	}
	assert.Equal(t, []string{"partial"}, got)
	assert.ErrorIs(t, r.Err(), boom)
}

func TestReply_CloseStopsProducer(t *testing.T) {
	r := startReply(context.Background(), func(ctx context.Context, emit func(string) error) error {
		for {
			if err := emit("tick"); err != nil {
				return err
			}
		}
	})

	<-r.Tokens()
	assert.NoError(t, r.Close())
	assert.ErrorIs(t, r.Err(), context.Canceled)

	_, open := <-r.Tokens()
	assert.False(t, open, "tokens should be closed after Close")
}

func TestReply_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := startReply(ctx, func(ctx context.Context, emit func(string) error) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()

	_, err := r.Collect()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailedReply(t *testing.T) {
	r := failedReply(ErrSessionBusy)
	text, err := r.Collect()
	assert.Empty(t, text)
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.ErrorIs(t, r.Close(), ErrSessionBusy)
}
