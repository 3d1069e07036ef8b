// Package bot serves the Bot Framework messaging endpoint. Activities arrive
// already normalized by the connector service; replies and proactive sends go
// back through the Bot Connector REST API.
package bot

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
)

const (
	ActivityMessage            = "message"
	ActivityConversationUpdate = "conversationUpdate"
	ActivityInvoke             = "invoke"
)

// Activity holds the envelope fields shared by every Bot Framework activity.
// Message bodies are parsed separately with teams.ParseMessage.
type Activity struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Name         string             `json:"name,omitempty"`
	ServiceURL   string             `json:"serviceUrl"`
	ChannelID    string             `json:"channelId"`
	ReplyToID    string             `json:"replyToId,omitempty"`
	From         teams.User         `json:"from"`
	Recipient    teams.User         `json:"recipient"`
	Conversation teams.Conversation `json:"conversation"`
	MembersAdded []teams.User       `json:"membersAdded,omitempty"`
}

// ParseActivity decodes the envelope. Only the type is required here.
func ParseActivity(body []byte) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, &teams.ParseError{Reason: "invalid json: " + err.Error()}
	}
	if strings.TrimSpace(a.Type) == "" {
		return nil, &teams.ParseError{Field: "type", Reason: "is required"}
	}
	return &a, nil
}

// BotAdded reports whether the bot itself is among the members just added.
func (a *Activity) BotAdded() bool {
	if a.Recipient.ID == "" {
		return false
	}
	for _, m := range a.MembersAdded {
		if m.ID == a.Recipient.ID {
			return true
		}
	}
	return false
}

// ConversationReference is what a later proactive send needs to reach a conversation.
type ConversationReference struct {
	ConversationID string    `json:"conversation_id"`
	ServiceURL     string    `json:"service_url"`
	ChannelID      string    `json:"channel_id,omitempty"`
	TenantID       string    `json:"tenant_id,omitempty"`
	BotID          string    `json:"bot_id,omitempty"`
	BotName        string    `json:"bot_name,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	ActivityID     string    `json:"activity_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Reference extracts the conversation reference. ok is false when the
// activity lacks a conversation id or a service URL.
func (a *Activity) Reference(now time.Time) (ref ConversationReference, ok bool) {
	convID := strings.TrimSpace(a.Conversation.ID)
	serviceURL := strings.TrimSpace(a.ServiceURL)
	if convID == "" || serviceURL == "" {
		return ConversationReference{}, false
	}
	userID := a.From.AADObjectID
	if userID == "" {
		userID = a.From.ID
	}
	return ConversationReference{
		ConversationID: convID,
		ServiceURL:     serviceURL,
		ChannelID:      a.ChannelID,
		TenantID:       a.Conversation.TenantID,
		BotID:          a.Recipient.ID,
		BotName:        a.Recipient.Name,
		UserID:         userID,
		ActivityID:     a.ID,
		UpdatedAt:      now,
	}, true
}
