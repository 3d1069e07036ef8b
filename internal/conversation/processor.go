package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/teams-agent-bridge/internal/agent"
	"github.com/wolfman30/teams-agent-bridge/internal/observability/metrics"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
	"github.com/wolfman30/teams-agent-bridge/internal/teams"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

const (
	DefaultEmptyText   = "I didn't catch that. Please mention me and ask a question."
	DefaultTimeoutText = "The request is taking longer than expected. Teams has a 5-second limit for responses. Please try a simpler question."
	DefaultFailureText = "I'm having trouble connecting to my knowledge base. Please try again in a moment."
	// FallbackText is used when processing itself breaks.
	FallbackText = "An unexpected error occurred. Please try again."
	ClearedText  = "Conversation cleared. Starting fresh!"

	agentCleanupTimeout = 10 * time.Second
)

// AgentClient is the subset of the agent client used per turn.
type AgentClient interface {
	Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatReply, error)
	HealthCheck(ctx context.Context) (*agent.HealthInfo, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
}

// Result is the text sent back for one inbound turn.
type Result struct {
	Text    string
	IsError bool
}

// Processor routes a turn to a command or the agent and always produces a Result.
type Processor struct {
	agent       AgentClient
	store       session.Store
	logger      *logging.Logger
	metrics     *metrics.RelayMetrics
	emptyText   string
	timeoutText string
	failureText string
	cleanup     sync.WaitGroup
}

// Option customizes a Processor.
type Option func(*Processor)

// WithMetrics records agent calls and absorbed store errors.
func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithTimeoutText overrides the reply used when the agent times out.
func WithTimeoutText(text string) Option {
	return func(p *Processor) {
		if text != "" {
			p.timeoutText = text
		}
	}
}

// WithFailureText overrides the reply used for any other agent failure.
func WithFailureText(text string) Option {
	return func(p *Processor) {
		if text != "" {
			p.failureText = text
		}
	}
}

// NewProcessor wires a processor. store may be nil, which disables continuity.
func NewProcessor(agentClient AgentClient, store session.Store, logger *logging.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		agent:       agentClient,
		store:       store,
		logger:      logger,
		emptyText:   DefaultEmptyText,
		timeoutText: DefaultTimeoutText,
		failureText: DefaultFailureText,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DeriveScope isolates sessions per thread: "conv" or "conv:thread".
func DeriveScope(conversationID, threadRootID string) string {
	if threadRootID == "" {
		return conversationID
	}
	return conversationID + ":" + threadRootID
}

// Process handles one inbound message. It never returns an error; failures
// become user-safe text with IsError set.
func (p *Processor) Process(ctx context.Context, msg *teams.InboundMessage) (res Result) {
	if msg == nil {
		return Result{Text: FallbackText, IsError: true}
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("processor panic", "panic", fmt.Sprint(r), "message_id", msg.ID)
			res = Result{Text: FallbackText, IsError: true}
		}
	}()

	log := p.logger.With(
		"message_id", msg.ID,
		"user_id", msg.SenderID(),
		"user_name", msg.From.Name,
		"conversation_id", msg.Conversation.ID,
	)

	if name, args, ok := msg.Command(); ok {
		log.Info("processing command", "command", name)
		return p.runCommand(ctx, name, args, msg)
	}

	query := msg.CleanText()
	if query == "" {
		return Result{Text: p.emptyText}
	}
	log.Info("processing query", "query_preview", preview(query, 50), "thread", msg.IsThreadReply())
	return p.query(ctx, query, msg)
}

func (p *Processor) query(ctx context.Context, query string, msg *teams.InboundMessage) Result {
	userID := msg.SenderID()
	scope := DeriveScope(msg.Conversation.ID, msg.ThreadRootID)
	log := p.logger.With("user_id", userID, "scope", scope)

	var sessionID string
	if p.store != nil {
		sess, err := p.store.Get(ctx, userID, scope)
		switch {
		case err != nil:
			p.metrics.ObserveStoreError("get")
			log.Warn("session lookup failed", "error", err)
		case sess != nil:
			sessionID = sess.SessionID
			log.Debug("session found", "session_id", sessionID, "message_count", sess.MessageCount)
		}
	}

	start := time.Now()
	reply, err := p.agent.Chat(ctx, agent.ChatRequest{Message: query, SessionID: sessionID, UserID: userID})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		kind := agent.KindOf(err)
		if kind == 0 && errors.Is(err, context.DeadlineExceeded) {
			kind = agent.KindTimeout
		}
		p.metrics.ObserveAgentCall("chat", resultLabel(kind), elapsed)
		if kind == agent.KindTimeout {
			log.Warn("agent timeout", "elapsed_s", elapsed)
			return Result{Text: p.timeoutText, IsError: true}
		}
		log.Error("agent error", "error", err, "kind", kind.String())
		return Result{Text: p.failureText, IsError: true}
	}
	p.metrics.ObserveAgentCall("chat", "ok", elapsed)
	log.Info("agent response received", "session_id", reply.SessionID, "intent", reply.Intent)

	// Last write wins when two turns in the same scope race.
	if p.store != nil && reply.SessionID != "" && reply.SessionID != sessionID {
		if err := p.store.Set(ctx, userID, scope, reply.SessionID); err != nil {
			p.metrics.ObserveStoreError("set")
			log.Warn("session store failed", "error", err)
		} else {
			log.Debug("session stored", "session_id", reply.SessionID)
		}
	}
	return Result{Text: reply.Message}
}

// Wait blocks until background agent cleanups started by /clear finish.
func (p *Processor) Wait() {
	p.cleanup.Wait()
}

func resultLabel(kind agent.ErrorKind) string {
	if kind == 0 {
		return "error"
	}
	return kind.String()
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
