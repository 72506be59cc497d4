package entity

import "time"

// Party is one side of a salon/client conversation
type Party struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Image     string `json:"image,omitempty"`
}

// DisplayName returns the party name, falling back to first/last name
func (p Party) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.LastName == "" {
		return p.FirstName
	}
	if p.FirstName == "" {
		return p.LastName
	}
	return p.FirstName + " " + p.LastName
}

// LastMessage is the denormalized snapshot of the most recent message
type LastMessage struct {
	Content    string     `json:"content"`
	SenderRole SenderRole `json:"senderRole,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Conversation represents a two-party thread between a salon and a client
type Conversation struct {
	ID            string       `json:"id"`
	Salon         Party        `json:"salon"`
	Client        Party        `json:"client"`
	Status        Status       `json:"status"`
	Subject       string       `json:"subject,omitempty"`
	LastMessage   *LastMessage `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time   `json:"lastMessageAt,omitempty"`
	UnreadCount   int          `json:"unreadCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	Messages      []Message    `json:"messages,omitempty"`

	// Counters holds both sides' unread counts. Only the store sees it;
	// UnreadCount is the viewer's side.
	Counters UnreadCounters `json:"-"`
}

// UnreadCounters are the per-side unread counts kept by the store
type UnreadCounters struct {
	Salon  int
	Client int
}

// For returns the count of the given side
func (u UnreadCounters) For(role SenderRole) int {
	if role == SenderRoleClient {
		return u.Client
	}
	return u.Salon
}

// ViewFor returns a copy of the conversation as seen by userID
func (c Conversation) ViewFor(userID string) Conversation {
	out := c.Clone()
	out.UnreadCount = c.Counters.For(c.SelfRole(userID))
	return out
}

// SelfRole returns the side the given user is on, or "" if neither
func (c *Conversation) SelfRole(userID string) SenderRole {
	switch userID {
	case "":
		return ""
	case c.Salon.UserID:
		return SenderRoleSalon
	case c.Client.UserID:
		return SenderRoleClient
	}
	return ""
}

// IsParticipant returns true if the user is the salon or the client
func (c *Conversation) IsParticipant(userID string) bool {
	return c.SelfRole(userID) != ""
}

// Other returns the counterparty of the given user
func (c *Conversation) Other(userID string) Party {
	if c.SelfRole(userID) == SenderRoleClient {
		return c.Salon
	}
	return c.Client
}

// Clone returns a deep copy of the conversation
func (c Conversation) Clone() Conversation {
	out := c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		out.LastMessageAt = &at
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return out
}

// UnreadConversationSummary is a row of the recent-unread dashboard widget
type UnreadConversationSummary struct {
	ConversationID  string    `json:"conversationId"`
	ClientFirstName string    `json:"clientFirstName"`
	ClientLastName  string    `json:"clientLastName"`
	ClientImage     string    `json:"clientImage,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	UnreadCount     int       `json:"unreadCount"`
}
