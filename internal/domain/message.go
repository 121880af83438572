package domain

import "time"

// InboundMessage is a text message received through the webhook.
type InboundMessage struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}
