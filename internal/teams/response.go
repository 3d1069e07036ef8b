package teams

// AdaptiveCardContentType is the attachment content type for Adaptive Cards.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

// Attachment wraps a card inside a message envelope.
type Attachment struct {
	ContentType string         `json:"contentType"`
	Content     map[string]any `json:"content"`
}

// Reply is the message envelope Teams expects in the webhook response.
type Reply struct {
	Type        string       `json:"type"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// TextReply builds a plain markdown reply.
func TextReply(text string) Reply {
	return Reply{Type: "message", Text: text}
}

// CardReply builds a reply carrying a single Adaptive Card.
func CardReply(card map[string]any) Reply {
	return Reply{
		Type:        "message",
		Attachments: []Attachment{{ContentType: AdaptiveCardContentType, Content: card}},
	}
}
