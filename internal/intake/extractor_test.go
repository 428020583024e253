package intake

import (
	"encoding/json"
	"testing"
)

const sampleWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "123456",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "5511999990000", "phone_number_id": "PHONE_A"},
        "contacts": [{"wa_id": "5511988887777", "profile": {"name": "Maria"}}],
        "messages": [
          {"id": "wamid.AAA", "from": "5511988887777", "timestamp": "1724700000", "type": "text", "text": {"body": "oi"}},
          {"id": "wamid.BBB", "from": "5511988887777", "timestamp": "1724700001", "type": "text", "text": {"body": "quero cimento"}}
        ]
      }
    }]
  }]
}`

func TestExtractMessages(t *testing.T) {
	var payload WebhookPayload
	if err := json.Unmarshal([]byte(sampleWebhook), &payload); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	messages := ExtractMessages(&payload)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}

	first := messages[0]
	if first.ExternalID != "wamid.AAA" {
		t.Errorf("external id = %q", first.ExternalID)
	}
	if first.PhoneNumberID != "PHONE_A" {
		t.Errorf("phone_number_id = %q", first.PhoneNumberID)
	}
	if first.SenderPhone != "5511988887777" || first.SenderName != "Maria" {
		t.Errorf("sender = %q (%q)", first.SenderPhone, first.SenderName)
	}
	if first.Text != "oi" || first.MessageType != "text" {
		t.Errorf("content = %q type %q", first.Text, first.MessageType)
	}
	if len(first.RawPayload) == 0 {
		t.Error("raw payload not captured")
	}
}

func TestExtractMessagesIgnoresStatusChanges(t *testing.T) {
	payload := &WebhookPayload{
		Entry: []Entry{{
			Changes: []Change{
				{Field: "message_status"},
				{Field: "messages", Value: ChangeValue{
					Messages: []WebhookMessage{
						// Missing external id, then missing sender.
						{ID: "", From: "551100"},
						{ID: "wamid.X", From: ""},
						{ID: "wamid.Y", From: "5511", Type: "text"},
					},
				}},
			},
		}},
	}

	messages := ExtractMessages(payload)
	if len(messages) != 1 || messages[0].ExternalID != "wamid.Y" {
		t.Fatalf("messages = %+v, want only wamid.Y", messages)
	}
}

func TestExtractMessagesEmptyPayload(t *testing.T) {
	if out := ExtractMessages(&WebhookPayload{}); len(out) != 0 {
		t.Fatalf("empty payload produced %d messages", len(out))
	}
}
