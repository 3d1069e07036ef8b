package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	cardSchema  = "http://adaptivecards.io/schemas/adaptive-card.json"
	cardVersion = "1.4"
	cardStamp   = "2006-01-02 15:04:05"

	defaultActionTitle = "Ver detalles"
)

// Priority ranks a notification. Unknown values render as medium.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityColors = map[Priority]string{
	PriorityLow:      "good",
	PriorityMedium:   "accent",
	PriorityHigh:     "warning",
	PriorityCritical: "attention",
}

var priorityIcons = map[Priority]string{
	PriorityLow:      "ℹ️",
	PriorityMedium:   "📢",
	PriorityHigh:     "⚠️",
	PriorityCritical: "🚨",
}

// ParsePriority validates a priority string.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PriorityMedium, nil
	}
	if _, ok := priorityColors[p]; !ok {
		return "", fmt.Errorf("notify: unknown priority %q", s)
	}
	return p, nil
}

// Icon returns the emoji used for the priority.
func (p Priority) Icon() string {
	if icon, ok := priorityIcons[p]; ok {
		return icon
	}
	return priorityIcons[PriorityMedium]
}

// Color returns the Adaptive Card container style for the priority.
func (p Priority) Color() string {
	if color, ok := priorityColors[p]; ok {
		return color
	}
	return priorityColors[PriorityMedium]
}

// CardKind selects a card template.
type CardKind string

const (
	CardAlert  CardKind = "alert"
	CardInfo   CardKind = "info"
	CardReport CardKind = "report"
)

// CardBuilder renders Adaptive Cards. Now is injectable for stable output.
type CardBuilder struct {
	Now func() time.Time
}

func (b CardBuilder) stamp() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().Format(cardStamp)
}

// Build dispatches to the template named by kind. Recognized data keys:
// source, action_url, action_title (alert), footer (info); report renders all keys as facts.
func (b CardBuilder) Build(kind CardKind, title, message string, priority Priority, data map[string]any) (map[string]any, error) {
	switch kind {
	case CardAlert:
		return b.Alert(title, message, priority, AlertOptions{
			Source:      stringValue(data, "source"),
			ActionURL:   stringValue(data, "action_url"),
			ActionTitle: stringValue(data, "action_title"),
		}), nil
	case CardInfo:
		return b.Info(title, message, priority, stringValue(data, "footer")), nil
	case CardReport:
		return b.Report(title, message, data), nil
	default:
		return nil, fmt.Errorf("notify: unknown card type %q", kind)
	}
}

// AlertOptions carries the optional parts of an alert card.
type AlertOptions struct {
	Source      string
	ActionURL   string
	ActionTitle string
}

// Alert renders a priority-colored alert with an optional link action.
func (b CardBuilder) Alert(title, message string, priority Priority, opts AlertOptions) map[string]any {
	body := []any{
		map[string]any{
			"type":  "Container",
			"style": priority.Color(),
			"items": []any{
				map[string]any{
					"type":   "TextBlock",
					"text":   priority.Icon() + " " + title,
					"weight": "Bolder",
					"size":   "Large",
					"wrap":   true,
				},
			},
		},
		textBlock(message),
	}
	if opts.Source != "" {
		body = append(body, subtleText("Fuente: "+opts.Source))
	}
	body = append(body, subtleText("_"+b.stamp()+"_"))

	card := newCard(body)
	if opts.ActionURL != "" {
		actionTitle := opts.ActionTitle
		if actionTitle == "" {
			actionTitle = defaultActionTitle
		}
		card["actions"] = []any{
			map[string]any{"type": "Action.OpenUrl", "title": actionTitle, "url": opts.ActionURL},
		}
	}
	return card
}

// Info renders a plain informational card.
func (b CardBuilder) Info(title, message string, priority Priority, footer string) map[string]any {
	body := []any{heading(priority.Icon()+" "+title), textBlock(message)}
	if footer != "" {
		f := subtleText(footer)
		f["wrap"] = true
		body = append(body, f)
	}
	return newCard(body)
}

// Report renders data as a FactSet, sorted by key.
func (b CardBuilder) Report(title, message string, data map[string]any) map[string]any {
	body := []any{heading("📊 " + title), textBlock(message)}
	if len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		facts := make([]any, 0, len(keys))
		for _, k := range keys {
			facts = append(facts, map[string]any{"title": k, "value": fmt.Sprint(data[k])})
		}
		body = append(body, map[string]any{"type": "FactSet", "facts": facts})
	}
	body = append(body, subtleText("Generado: "+b.stamp()))
	return newCard(body)
}

func newCard(body []any) map[string]any {
	return map[string]any{
		"$schema": cardSchema,
		"type":    "AdaptiveCard",
		"version": cardVersion,
		"body":    body,
	}
}

func heading(text string) map[string]any {
	return map[string]any{"type": "TextBlock", "text": text, "weight": "Bolder", "size": "Medium", "wrap": true}
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "TextBlock", "text": text, "wrap": true}
}

func subtleText(text string) map[string]any {
	return map[string]any{"type": "TextBlock", "text": text, "size": "Small", "isSubtle": true}
}

func stringValue(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
