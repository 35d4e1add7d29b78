package stream

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/proto"
)

func collect(t *testing.T, ctx context.Context, b *Bridge, src Source) []Event {
	t.Helper()
	return slices.Collect(b.Events(ctx, src))
}

func failingSource(chunks []string, err error) Source {
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		yield("", err)
	}
}

func requireWellFormed(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	for i, ev := range events {
		require.Equal(t, i, ev.Seq)
		if i < len(events)-1 {
			require.False(t, ev.Terminal(), "terminal event at %d of %d", i, len(events))
		}
	}
	require.True(t, events[len(events)-1].Terminal())
}

func TestEvents(t *testing.T) {
	boom := errors.New("connection reset by peer")

	tests := map[string]struct {
		src   Source
		kinds []EventKind
		texts []string
	}{
		"three chunks": {
			src:   FromChunks("Hello", ", ", "world"),
			kinds: []EventKind{EventDelta, EventDelta, EventDelta, EventDone},
			texts: []string{"Hello", ", ", "world", ""},
		},
		"single answer": {
			src:   FromText("The result is 96"),
			kinds: []EventKind{EventDelta, EventDone},
			texts: []string{"The result is 96", ""},
		},
		"empty chunks are skipped": {
			src:   FromChunks("", "a", "", "b"),
			kinds: []EventKind{EventDelta, EventDelta, EventDone},
			texts: []string{"a", "b", ""},
		},
		"empty source": {
			src:   FromChunks(),
			kinds: []EventKind{EventDone},
			texts: []string{""},
		},
		"mid-stream failure": {
			src:   failingSource([]string{"par", "tial"}, boom),
			kinds: []EventKind{EventDelta, EventDelta, EventError},
			texts: []string{"par", "tial", "connection reset by peer"},
		},
		"failure carries its reason": {
			src:   failingSource(nil, errs.New(errs.KindModelInference, boom, "Sorry, I had trouble answering that.")),
			kinds: []EventKind{EventError},
			texts: []string{"Sorry, I had trouble answering that."},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			events := collect(t, context.Background(), NewBridge(0), tc.src)
			requireWellFormed(t, events)

			kinds := make([]EventKind, 0, len(events))
			texts := make([]string, 0, len(events))
			for _, ev := range events {
				kinds = append(kinds, ev.Kind)
				texts = append(texts, ev.Text)
			}
			require.Equal(t, tc.kinds, kinds)
			require.Equal(t, tc.texts, texts)
		})
	}
}

func TestEventsErrorKeepsCause(t *testing.T) {
	boom := errors.New("boom")
	events := collect(t, context.Background(), NewBridge(0), failingSource([]string{"x"}, boom))
	require.ErrorIs(t, events[len(events)-1].Err, boom)
}

func TestEventsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pulled := 0
	src := func(yield func(string, error) bool) {
		for {
			pulled++
			if pulled == 2 {
				cancel()
			}
			if !yield("tick", nil) {
				return
			}
		}
	}

	events := collect(t, ctx, NewBridge(0), src)
	requireWellFormed(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Kind)
	require.ErrorIs(t, last.Err, context.Canceled)
	require.Len(t, events, 2)
}

func TestEventsNotRestartable(t *testing.T) {
	seq := NewBridge(0).Events(context.Background(), FromChunks("a"))
	require.Len(t, slices.Collect(seq), 2)
	require.Empty(t, slices.Collect(seq))
}

func TestEventsPullOneAtATime(t *testing.T) {
	pulled := 0
	src := func(yield func(string, error) bool) {
		for range 10 {
			pulled++
			if !yield("x", nil) {
				return
			}
		}
	}

	for ev := range NewBridge(0).Events(context.Background(), src) {
		require.Equal(t, ev.Seq+1, pulled)
		if ev.Seq == 2 {
			break
		}
	}
	require.Equal(t, 3, pulled)
}

func TestEventsPacing(t *testing.T) {
	start := time.Now()
	events := collect(t, context.Background(), NewBridge(20*time.Millisecond), FromChunks("a", "b", "c"))
	require.Len(t, events, 4)
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPipe(t *testing.T) {
	t.Run("forwards chunks in order", func(t *testing.T) {
		src := Pipe(context.Background(), func(_ context.Context, emit func(string) error) error {
			for _, s := range []string{"one ", "two ", "three"} {
				if err := emit(s); err != nil {
					return err
				}
			}
			return nil
		})
		events := collect(t, context.Background(), NewBridge(0), src)
		requireWellFormed(t, events)
		require.Len(t, events, 4)
		require.Equal(t, "two ", events[1].Text)
		require.Equal(t, EventDone, events[3].Kind)
	})

	t.Run("producer failure ends with an error event", func(t *testing.T) {
		boom := errors.New("model went away")
		src := Pipe(context.Background(), func(_ context.Context, emit func(string) error) error {
			_ = emit("partial")
			return boom
		})
		events := collect(t, context.Background(), NewBridge(0), src)
		requireWellFormed(t, events)
		require.Len(t, events, 2)
		require.Equal(t, EventError, events[1].Kind)
		require.ErrorIs(t, events[1].Err, boom)
	})

	t.Run("early stop cancels the producer", func(t *testing.T) {
		stopped := make(chan error, 1)
		src := Pipe(context.Background(), func(ctx context.Context, emit func(string) error) error {
			for {
				if err := emit("x"); err != nil {
					stopped <- err
					return err
				}
			}
		})
		for range src {
			break
		}
		select {
		case err := <-stopped:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("producer kept running")
		}
	})
}

type stubStream struct {
	chunks []string
	err    error
	pos    int
	msg    proto.Message
	closed bool
}

func (s *stubStream) Next() bool {
	if s.pos >= len(s.chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *stubStream) Current() (proto.Chunk, error) {
	c := s.chunks[s.pos-1]
	if c == "" {
		return proto.Chunk{}, ErrNoContent
	}
	return proto.Chunk{Content: c}, nil
}

func (s *stubStream) Err() error             { return s.err }
func (s *stubStream) Close() error           { s.closed = true; return nil }
func (s *stubStream) Message() proto.Message { return s.msg }

func TestDrain(t *testing.T) {
	st := &stubStream{
		chunks: []string{"a", "", "b"},
		msg:    proto.Message{Role: proto.RoleAssistant, Content: "ab"},
	}
	var got []string
	msg, err := Drain(st, func(s string) { got = append(got, s) })
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)
	require.Equal(t, "ab", msg.Content)

	_, err = Drain(&stubStream{err: errors.New("nope")}, nil)
	require.EqualError(t, err, "nope")
}

func TestFromStream(t *testing.T) {
	st := &stubStream{chunks: []string{"x", "y"}, err: nil}
	events := collect(t, context.Background(), NewBridge(0), FromStream(st))
	require.Len(t, events, 3)
	require.True(t, st.closed)

	failing := &stubStream{chunks: []string{"x"}, err: errors.New("disconnected")}
	events = collect(t, context.Background(), NewBridge(0), FromStream(failing))
	require.Len(t, events, 2)
	require.Equal(t, EventError, events[1].Kind)
}
