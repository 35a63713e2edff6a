package email

import (
	"context"
)

// Message is one outbound email.
type Message struct {
	FromName  string
	FromEmail string
	To        string
	Subject   string
	HTML      string
}

// Transport delivers a message and returns the provider message id. Delivery
// is fallible per call; acceptance is the only guarantee.
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}
