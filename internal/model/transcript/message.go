package transcript

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Variant distinguishes ordinary entries from failure notices.
type Variant string

const (
	VariantNormal Variant = "normal"
	VariantError  Variant = "error"
)

// Source is a citation attached to an assistant answer.
type Source struct {
	Label string   `json:"label"`
	Page  *int     `json:"page,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Message is one immutable entry of the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	Variant   Variant   `json:"variant,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsError reports whether the message is a failure notice.
func (m Message) IsError() bool {
	return m.Variant == VariantError
}
