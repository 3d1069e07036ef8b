package teams

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var mentionPattern = regexp.MustCompile(`<at>[^<]+</at>\s*`)

// User identifies the sender or recipient of an activity.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// Conversation carries the channel or chat an activity belongs to.
type Conversation struct {
	ID               string `json:"id"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	Name             string `json:"name,omitempty"`
}

// Mention is an entry from the activity's entities list.
type Mention struct {
	ID   string
	Name string
	Text string
}

// InboundMessage is the normalized form of a Teams outgoing webhook activity.
type InboundMessage struct {
	ID           string
	Type         string
	RawText      string
	From         User
	Conversation Conversation
	Recipient    *User
	ServiceURL   string
	ChannelID    string
	ThreadRootID string
	Timestamp    *time.Time
	Mentions     []Mention
}

// ParseError reports a payload that cannot be turned into an InboundMessage.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "teams: parse activity: " + e.Reason
	}
	return fmt.Sprintf("teams: parse activity: %s %s", e.Field, e.Reason)
}

type activityPayload struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	Timestamp    json.RawMessage `json:"timestamp"`
	From         *User           `json:"from"`
	Conversation *Conversation   `json:"conversation"`
	Recipient    *User           `json:"recipient"`
	ServiceURL   string          `json:"serviceUrl"`
	ChannelID    string          `json:"channelId"`
	ReplyToID    string          `json:"replyToId"`
	Entities     []struct {
		Type      string `json:"type"`
		Text      string `json:"text"`
		Mentioned struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"mentioned"`
	} `json:"entities"`
}

// ParseMessage decodes an activity payload. The id, sender id and conversation id are required.
func ParseMessage(data []byte) (*InboundMessage, error) {
	var p activityPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &ParseError{Reason: "invalid json: " + err.Error()}
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, &ParseError{Field: "id", Reason: "is required"}
	}
	if p.From == nil || strings.TrimSpace(p.From.ID) == "" {
		return nil, &ParseError{Field: "from.id", Reason: "is required"}
	}
	if p.Conversation == nil || strings.TrimSpace(p.Conversation.ID) == "" {
		return nil, &ParseError{Field: "conversation.id", Reason: "is required"}
	}

	msg := &InboundMessage{
		ID:           p.ID,
		Type:         p.Type,
		RawText:      p.Text,
		From:         *p.From,
		Conversation: *p.Conversation,
		Recipient:    p.Recipient,
		ServiceURL:   p.ServiceURL,
		ChannelID:    p.ChannelID,
		ThreadRootID: strings.TrimSpace(p.ReplyToID),
		Timestamp:    parseTimestamp(p.Timestamp),
	}
	if msg.Type == "" {
		msg.Type = "message"
	}
	if msg.ChannelID == "" {
		msg.ChannelID = "msteams"
	}
	if strings.TrimSpace(msg.From.Name) == "" {
		msg.From.Name = "Unknown"
	}
	for _, e := range p.Entities {
		if e.Type != "mention" {
			continue
		}
		msg.Mentions = append(msg.Mentions, Mention{ID: e.Mentioned.ID, Name: e.Mentioned.Name, Text: e.Text})
	}
	return msg, nil
}

// parseTimestamp accepts RFC 3339 strings; anything else yields nil.
func parseTimestamp(raw json.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &ts
}

// CleanText returns the text with every <at>mention</at> removed.
func (m *InboundMessage) CleanText() string {
	return CleanText(m.RawText)
}

// CleanText strips mention markup from text and trims the result.
func CleanText(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

// IsCommand reports whether the clean text starts with a slash.
func (m *InboundMessage) IsCommand() bool {
	return strings.HasPrefix(m.CleanText(), "/")
}

// Command splits "/name args" into a lower-cased name and the remaining text.
func (m *InboundMessage) Command() (name, args string, ok bool) {
	clean := m.CleanText()
	if !strings.HasPrefix(clean, "/") {
		return "", "", false
	}
	head := clean
	if idx := strings.IndexFunc(clean, isSpace); idx >= 0 {
		head = clean[:idx]
		args = strings.TrimSpace(clean[idx:])
	}
	return strings.ToLower(strings.TrimPrefix(head, "/")), args, true
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// SenderID prefers the directory object id since the account id differs per bot.
func (m *InboundMessage) SenderID() string {
	if m.From.AADObjectID != "" {
		return m.From.AADObjectID
	}
	return m.From.ID
}

// IsThreadReply reports whether the activity replies inside a thread.
func (m *InboundMessage) IsThreadReply() bool {
	return m.ThreadRootID != ""
}

// IsValidationRequest reports whether a request body looks like the platform
// checking that the endpoint is alive: an empty body, or a JSON object lacking
// both text and type. Malformed JSON is not a validation request.
func IsValidationRequest(body []byte) bool {
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	var envelope struct {
		Text *string `json:"text"`
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	hasText := envelope.Text != nil && *envelope.Text != ""
	hasType := envelope.Type != nil && *envelope.Type != ""
	return !hasText && !hasType
}
