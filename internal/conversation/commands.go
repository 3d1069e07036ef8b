package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
)

type command struct {
	name        string
	description string
}

var commands = []command{
	{"help", "Show available commands"},
	{"clear", "Clear conversation history (start fresh)"},
	{"status", "Check agent connection status"},
}

// HelpText lists the slash commands.
func HelpText() string {
	lines := []string{"**Available Commands:**\n"}
	for _, c := range commands {
		lines = append(lines, fmt.Sprintf("- `/%s` - %s", c.name, c.description))
	}
	lines = append(lines, "\n**Or just ask me a question!**")
	return strings.Join(lines, "\n")
}

func (p *Processor) runCommand(ctx context.Context, name, _ string, msg *teams.InboundMessage) Result {
	switch name {
	case "help":
		return Result{Text: HelpText()}
	case "clear":
		return p.clear(ctx, msg)
	case "status":
		return p.status(ctx)
	default:
		return Result{Text: fmt.Sprintf("Unknown command: /%s\n\nType /help for available commands.", name)}
	}
}

// clear drops the local mapping and asks the agent to forget the session in
// the background. It always confirms, even when nothing was stored.
func (p *Processor) clear(ctx context.Context, msg *teams.InboundMessage) Result {
	if p.store == nil {
		return Result{Text: ClearedText}
	}
	userID := msg.SenderID()
	scope := DeriveScope(msg.Conversation.ID, msg.ThreadRootID)

	var sessionID string
	if sess, err := p.store.Get(ctx, userID, scope); err != nil {
		p.metrics.ObserveStoreError("get")
	} else if sess != nil {
		sessionID = sess.SessionID
	}

	deleted, err := p.store.Delete(ctx, userID, scope)
	if err != nil {
		p.metrics.ObserveStoreError("delete")
		p.logger.Warn("session clear failed", "user_id", userID, "scope", scope, "error", err)
	} else if deleted {
		p.logger.Info("session cleared", "user_id", userID, "scope", scope)
	}

	if sessionID != "" && p.agent != nil {
		p.cleanup.Add(1)
		go func() {
			defer p.cleanup.Done()
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), agentCleanupTimeout)
			defer cancel()
			if _, err := p.agent.DeleteSession(cctx, sessionID); err != nil {
				p.logger.Warn("agent session delete failed", "session_id", sessionID, "error", err)
			}
		}()
	}
	return Result{Text: ClearedText}
}

func (p *Processor) status(ctx context.Context) Result {
	health, err := p.agent.HealthCheck(ctx)
	if err != nil {
		return Result{Text: fmt.Sprintf("**Agent Status:** Unavailable\n**Error:** %v", err), IsError: true}
	}
	return Result{Text: fmt.Sprintf("**Agent Status:** %s\n**Version:** %s", health.Status, health.Version)}
}
