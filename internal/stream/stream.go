// Package stream defines the chat-completion boundary and the bridge that
// turns incremental model output into an ordered, terminated event sequence.
package stream

import (
	"context"
	"errors"

	"github.com/dotcommander/toolchat/internal/proto"
)

// ErrNoContent happens when the current part of a stream carries no text.
var ErrNoContent = errors.New("no content")

// Client is a chat-completion collaborator.
type Client interface {
	Request(context.Context, proto.Request) Stream
}

// Stream is one model turn being generated.
//
// Next advances to the next part and reports false once the turn is over or
// failed. Message returns the accumulated assistant turn, including any tool
// calls, and is only complete after Next has returned false.
type Stream interface {
	Next() bool
	Current() (proto.Chunk, error)
	Err() error
	Close() error
	Message() proto.Message
}

// Drain consumes st, passing every text chunk to sink, and returns the
// resulting assistant turn. sink may be nil.
func Drain(st Stream, sink func(string)) (proto.Message, error) {
	for st.Next() {
		chunk, err := st.Current()
		if errors.Is(err, ErrNoContent) {
			continue
		}
		if err != nil {
			return proto.Message{}, err
		}
		if sink != nil && chunk.Content != "" {
			sink(chunk.Content)
		}
	}
	if err := st.Err(); err != nil {
		return proto.Message{}, err
	}
	return st.Message(), nil
}
