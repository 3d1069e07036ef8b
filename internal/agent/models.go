package agent

import "time"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Execution describes one agent in the backend pipeline.
type Execution struct {
	AgentName   string         `json:"agent_name"`
	DisplayName string         `json:"display_name"`
	Status      string         `json:"status"`
	DurationMS  int            `json:"duration_ms,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
}

// ChatReply is the agent's answer to a chat turn.
type ChatReply struct {
	SessionID        string      `json:"session_id"`
	Message          string      `json:"message"`
	AgentsExecuted   []Execution `json:"agents_executed,omitempty"`
	Intent           string      `json:"intent,omitempty"`
	Confidence       *float64    `json:"confidence,omitempty"`
	RequiresApproval bool        `json:"requires_approval"`
}

// HealthInfo is the payload of GET /health.
type HealthInfo struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Details map[string]any `json:"-"`
}

// HistoryMessage is a single turn stored by the agent.
type HistoryMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SessionInfo is the agent's view of a session.
type SessionInfo struct {
	SessionID    string           `json:"session_id"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
	MessageCount int              `json:"message_count"`
	Messages     []HistoryMessage `json:"messages,omitempty"`
}
