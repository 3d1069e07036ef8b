package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
)

const messageActivity = `{
	"id":"a1","type":"message","text":"<at>Bot</at> what is the leave policy?",
	"serviceUrl":"https://smba.example.net/amer/","channelId":"msteams","replyToId":"root-1",
	"from":{"id":"29:u1","name":"Ana","aadObjectId":"aad-1"},
	"recipient":{"id":"28:bot","name":"Bot"},
	"conversation":{"id":"19:general;messageid=root-1","tenantId":"tenant-1"}
}`

const botAddedActivity = `{
	"id":"u1","type":"conversationUpdate","serviceUrl":"https://smba.example.net/amer/",
	"recipient":{"id":"28:bot","name":"Bot"},
	"conversation":{"id":"19:team"},
	"membersAdded":[{"id":"29:someone"},{"id":"28:bot"}]
}`

func TestParseActivity(t *testing.T) {
	act, err := ParseActivity([]byte(messageActivity))
	require.NoError(t, err)
	assert.Equal(t, ActivityMessage, act.Type)
	assert.Equal(t, "root-1", act.ReplyToID)
	assert.Equal(t, "28:bot", act.Recipient.ID)

	_, err = ParseActivity([]byte(`{"id":"x"}`))
	var parseErr *teams.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "type", parseErr.Field)

	_, err = ParseActivity([]byte(`nope`))
	assert.ErrorAs(t, err, &parseErr)
}

func TestBotAdded(t *testing.T) {
	act, err := ParseActivity([]byte(botAddedActivity))
	require.NoError(t, err)
	assert.True(t, act.BotAdded())

	act.MembersAdded = act.MembersAdded[:1]
	assert.False(t, act.BotAdded())

	act.Recipient.ID = ""
	act.MembersAdded = []teams.User{{ID: ""}}
	assert.False(t, act.BotAdded())
}

func TestActivityReference(t *testing.T) {
	act, err := ParseActivity([]byte(messageActivity))
	require.NoError(t, err)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	ref, ok := act.Reference(at)
	require.True(t, ok)
	assert.Equal(t, ConversationReference{
		ConversationID: "19:general;messageid=root-1",
		ServiceURL:     "https://smba.example.net/amer/",
		ChannelID:      "msteams",
		TenantID:       "tenant-1",
		BotID:          "28:bot",
		BotName:        "Bot",
		UserID:         "aad-1",
		ActivityID:     "a1",
		UpdatedAt:      at,
	}, ref)

	act.ServiceURL = " "
	_, ok = act.Reference(at)
	assert.False(t, ok)
}

func TestReferencesKeepLatestPerConversation(t *testing.T) {
	refs := NewReferences()
	act, err := ParseActivity([]byte(messageActivity))
	require.NoError(t, err)
	require.True(t, refs.Remember(act))

	act.ID = "a2"
	require.True(t, refs.Remember(act))
	ref, ok := refs.Get(act.Conversation.ID)
	require.True(t, ok)
	assert.Equal(t, "a2", ref.ActivityID)
	assert.Equal(t, 1, refs.Len())

	other, err := ParseActivity([]byte(botAddedActivity))
	require.NoError(t, err)
	refs.Remember(other)
	assert.Equal(t, []string{"19:general;messageid=root-1", "19:team"}, refs.IDs())

	assert.False(t, refs.Remember(&Activity{Type: ActivityMessage}))
	assert.True(t, refs.Remove("19:team"))
	assert.False(t, refs.Remove("19:team"))
	assert.False(t, refs.Has("19:team"))
}
