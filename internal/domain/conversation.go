package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleBot      Role = "automated-agent"
)

type Message struct {
	Role      Role
	Body      string
	Timestamp time.Time
}

// Conversation is one support conversation as fetched from the record source.
// Immutable once fetched: a pass never mutates a conversation, it only
// produces Results that reference it by ID.
type Conversation struct {
	ID         string
	Messages   []Message
	Attributes map[string]string
	Tags       []string
}

// Attr returns the structured attribute under key, or "" when the attribute
// map is nil or the key is absent. Callers never need to nil-check.
func (c Conversation) Attr(key string) string {
	if c.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(c.Attributes[key])
}

// StartedAt is the timestamp of the first message, or zero when the
// conversation has no messages.
func (c Conversation) StartedAt() time.Time {
	if len(c.Messages) == 0 {
		return time.Time{}
	}
	return c.Messages[0].Timestamp
}

// CustomerText concatenates the customer's message bodies in order, the
// opening statement first. Used as the free-text classification signal;
// agent and automated replies would dilute it.
func (c Conversation) CustomerText() string {
	var b strings.Builder
	for _, m := range c.Messages {
		if m.Role != RoleCustomer {
			continue
		}
		body := strings.TrimSpace(m.Body)
		if body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(body)
	}
	return b.String()
}
