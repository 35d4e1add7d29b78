package stream

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/dotcommander/toolchat/internal/errs"
)

// DefaultPacing is the delay applied between events.
const DefaultPacing = 10 * time.Millisecond

// EventKind is the payload kind of an Event.
type EventKind string

// Event kinds.
const (
	EventDelta EventKind = "delta"
	EventDone  EventKind = "done"
	EventError EventKind = "error"
)

// Event is one ordered unit of a streamed response.
type Event struct {
	Seq  int       `json:"seq"`
	Kind EventKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	Err  error     `json:"-"`
}

// Terminal reports whether e ends its stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Source produces chunks of text. A non-nil error ends the source.
type Source = iter.Seq2[string, error]

// FromText is a source holding a single, already computed answer.
func FromText(answer string) Source {
	return FromChunks(answer)
}

// FromChunks is a source yielding chunks in order.
func FromChunks(chunks ...string) Source {
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// FromStream adapts a model stream into a source.
func FromStream(st Stream) Source {
	return func(yield func(string, error) bool) {
		defer func() { _ = st.Close() }()
		stopped := false
		_, err := Drain(st, func(s string) {
			if !stopped && !yield(s, nil) {
				stopped = true
				_ = st.Close()
			}
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// Pipe runs produce in its own goroutine and exposes what it emits as a
// source. At most one chunk is buffered. When the consumer stops early, ctx
// handed to produce is cancelled and emit starts failing.
func Pipe(ctx context.Context, produce func(ctx context.Context, emit func(string) error) error) Source {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string, 1)
		result := make(chan error, 1)
		go func() {
			defer close(chunks)
			result <- produce(ctx, func(s string) error {
				select {
				case chunks <- s:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}()

		for s := range chunks {
			if !yield(s, nil) {
				return
			}
		}
		if err := <-result; err != nil {
			yield("", err)
		}
	}
}

// Bridge republishes sources as event sequences.
type Bridge struct {
	// Pacing is the delay after each delta. Zero disables it.
	Pacing time.Duration
	// ErrorText is used for error events whose error carries no reason.
	ErrorText string
}

// NewBridge returns a bridge with the given pacing.
func NewBridge(pacing time.Duration) *Bridge {
	return &Bridge{Pacing: pacing}
}

// Events returns the lazy event sequence for src. Every non-empty chunk
// becomes one delta event; the sequence ends with exactly one done or error
// event. Cancelling ctx ends it with an error event.
//
// The sequence pulls from src only when the previous event has been
// consumed, and it cannot be restarted.
func (b *Bridge) Events(ctx context.Context, src Source) iter.Seq[Event] {
	used := false
	return func(yield func(Event) bool) {
		if used {
			return
		}
		used = true

		seq := 0
		emit := func(kind EventKind, text string, err error) bool {
			ev := Event{Seq: seq, Kind: kind, Text: text, Err: err}
			seq++
			return yield(ev)
		}

		var failure error
		for text, err := range src {
			if err != nil {
				failure = err
				break
			}
			if ctx.Err() != nil {
				break
			}
			if text == "" {
				continue
			}
			if !emit(EventDelta, text, nil) {
				return
			}
			if !b.pace(ctx) {
				break
			}
		}

		if failure == nil {
			failure = ctx.Err()
		}
		if failure != nil {
			emit(EventError, b.errorText(failure), failure)
			return
		}
		emit(EventDone, "", nil)
	}
}

func (b *Bridge) pace(ctx context.Context) bool {
	if b.Pacing <= 0 {
		return true
	}
	t := time.NewTimer(b.Pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (b *Bridge) errorText(err error) string {
	fallback := b.ErrorText
	if fallback == "" {
		fallback = strings.TrimSpace(err.Error())
	}
	return errs.Reason(err, fallback)
}
