// Package mail defines the outbound message model and the delivery port.
// The server enqueues messages; transports (SMTP, the AMQP queue) live in
// subpackages.
package mail

import (
	"context"
	"fmt"
	"net/url"
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers (or enqueues) a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InviteMessage builds the registration invitation carrying the link with
// the invite token and email embedded.
func InviteMessage(email, token, baseURL string) Message {
	link := fmt.Sprintf("%s/api/v1/verify?token=%s&email=%s",
		baseURL, url.QueryEscape(token), url.QueryEscape(email))
	return Message{
		To:      email,
		Subject: "Registration Invitation",
		Body:    fmt.Sprintf("Please click on the link to register: %s", link),
	}
}

// PinMessage builds the confirmation mail with the one-time pin.
func PinMessage(email, pin string) Message {
	return Message{
		To:      email,
		Subject: "Confirm PIN",
		Body:    fmt.Sprintf("PIN: %s", pin),
	}
}
