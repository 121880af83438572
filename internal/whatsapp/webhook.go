package whatsapp

import "encoding/json"

// WebhookPayload mirrors the fixed nested structure of Cloud API webhook
// notifications, scoped to the fields the relay reads.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	Changes []Change `json:"changes"`
}

type Change struct {
	Value Value `json:"value"`
}

type Value struct {
	Metadata Metadata  `json:"metadata"`
	Contacts []Contact `json:"contacts"`
	Messages []Message `json:"messages"`
}

type Metadata struct {
	PhoneNumberID string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

type Message struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text *Text  `json:"text"`
}

type Text struct {
	Body string `json:"body"`
}

// ParsePayload decodes a webhook body. A decode failure means the payload
// is malformed, which callers acknowledge with 200 anyway.
func ParsePayload(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// IsMessageNotification reports whether the payload carries an inbound
// user message (as opposed to status updates or other notifications).
func (p *WebhookPayload) IsMessageNotification() bool {
	return p.Object == "whatsapp_business_account" &&
		len(p.Entry) > 0 &&
		len(p.Entry[0].Changes) > 0 &&
		len(p.Entry[0].Changes[0].Value.Messages) > 0
}

// FirstMessage extracts the sender, display name, and message from a
// message notification. Callers must check IsMessageNotification first.
func (p *WebhookPayload) FirstMessage() (userID, name string, msg Message) {
	value := p.Entry[0].Changes[0].Value
	if len(value.Contacts) > 0 {
		userID = value.Contacts[0].WaID
		name = value.Contacts[0].Profile.Name
	}
	msg = value.Messages[0]
	if userID == "" {
		userID = msg.From
	}
	return userID, name, msg
}
