package models

import (
	"context"
	"errors"
)

// ErrTransport marks a failure reported by the push provider itself, as
// opposed to a network failure reaching it.
var ErrTransport = errors.New("transport rejected message")

// PushMessage is the payload handed to a transport.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// TokenResult is the per-device outcome of a batch send.
type TokenResult struct {
	Token string
	Err   error
}

// BatchResult summarizes a batch send.
type BatchResult struct {
	SuccessCount int
	Results      []TokenResult
}

// Transport delivers one message to all device tokens of a recipient.
type Transport interface {
	SendBatch(ctx context.Context, msg PushMessage, tokens []string) (BatchResult, error)
}
