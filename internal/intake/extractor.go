// Package intake receives WhatsApp Cloud webhook deliveries, records them in
// the idempotency ledger and hands them to the worker queue. Its HTTP handler
// does no business processing: verify, persist, enqueue, ack.
package intake

import "encoding/json"

// WebhookPayload is the WhatsApp Cloud API webhook envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one WhatsApp Business Account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field update inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages and channel metadata.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         ChannelMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
}

// ChannelMetadata identifies which business number received the message.
type ChannelMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookContact is the sender profile attached to a delivery.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is one inbound message.
type WebhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

// ExtractedMessage is the channel-independent view handed to the service.
type ExtractedMessage struct {
	ExternalID    string
	PhoneNumberID string
	SenderPhone   string
	SenderName    string
	MessageType   string
	Text          string
	RawPayload    json.RawMessage
}

// ExtractMessages flattens a webhook payload into individual messages. Status
// updates and non-message changes are ignored. Messages without an ID are
// dropped: without an external ID there is nothing to deduplicate on.
func ExtractMessages(payload *WebhookPayload) []ExtractedMessage {
	var out []ExtractedMessage

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, msg := range change.Value.Messages {
				if msg.ID == "" || msg.From == "" {
					continue
				}

				raw, err := json.Marshal(msg)
				if err != nil {
					continue
				}

				out = append(out, ExtractedMessage{
					ExternalID:    msg.ID,
					PhoneNumberID: change.Value.Metadata.PhoneNumberID,
					SenderPhone:   msg.From,
					SenderName:    names[msg.From],
					MessageType:   msg.Type,
					Text:          msg.Text.Body,
					RawPayload:    raw,
				})
			}
		}
	}

	return out
}
