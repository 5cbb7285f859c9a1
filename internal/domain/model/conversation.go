package model

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the per-user chat history handed to the LLM. The first
// message is always the system instruction it was seeded with.
type Conversation struct {
	UserID   string    `json:"user_id"`
	Messages []Message `json:"messages"`
}

func NewConversation(userID, systemPrompt string) *Conversation {
	return &Conversation{
		UserID:   userID,
		Messages: []Message{{Role: RoleSystem, Content: systemPrompt}},
	}
}

func (c *Conversation) Append(role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

// Reset truncates the history back to the seed instruction.
func (c *Conversation) Reset() {
	if len(c.Messages) > 1 {
		c.Messages = c.Messages[:1]
	}
}
