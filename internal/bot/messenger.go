package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

// ErrNoReference is returned for a conversation the bot has not seen yet.
var ErrNoReference = errors.New("bot: no conversation reference")

// Messenger sends unsolicited messages to conversations the bot already knows.
type Messenger struct {
	refs    *References
	replier Replier
	logger  *logging.Logger
}

func NewMessenger(refs *References, replier Replier, logger *logging.Logger) *Messenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &Messenger{refs: refs, replier: replier, logger: logger}
}

func (m *Messenger) SendText(ctx context.Context, conversationID, text string) error {
	return m.send(ctx, conversationID, teams.TextReply(text))
}

func (m *Messenger) SendCard(ctx context.Context, conversationID string, card map[string]any) error {
	return m.send(ctx, conversationID, teams.CardReply(card))
}

func (m *Messenger) HasConversation(conversationID string) bool {
	return m.refs.Has(conversationID)
}

// Conversations lists every conversation a proactive send can reach.
func (m *Messenger) Conversations() []string {
	return m.refs.IDs()
}

func (m *Messenger) send(ctx context.Context, conversationID string, reply teams.Reply) error {
	ref, ok := m.refs.Get(conversationID)
	if !ok {
		m.logger.Warn("proactive message skipped", "conversation_id", conversationID, "reason", "no_reference")
		return fmt.Errorf("%w: %s", ErrNoReference, conversationID)
	}
	if err := m.replier.SendToConversation(ctx, ref, reply); err != nil {
		m.logger.Error("proactive message failed", "conversation_id", conversationID, "error", err)
		return err
	}
	m.logger.Info("proactive message sent", "conversation_id", conversationID)
	return nil
}
