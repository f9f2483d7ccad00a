package domain

import "strings"

const pairSeparator = "|"

// ConversationKey identifies the unordered pair {a, b}.
// There is no conversation entity: the key is only used to scan the message log.
type ConversationKey string

func NewConversationKey(a, b UserID) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey(string(a) + pairSeparator + string(b))
}

// Participants returns both users in lexical order.
func (k ConversationKey) Participants() (UserID, UserID) {
	first, second, _ := strings.Cut(string(k), pairSeparator)
	return UserID(first), UserID(second)
}

// ConversationSummary is the derived view one user has of a conversation.
type ConversationSummary struct {
	PartnerID   UserID  `json:"partner_id"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}

// Page selects a window of a conversation, newest first.
type Page struct {
	Cursor *string
	Limit  int
}
