package runtime

import (
	"chat-relay/domain"
	"hash/fnv"
	"sync"
)

const defaultStripes = 256

// ConversationLocks serializes the writers of one conversation.
// Persisting and routing a message, and marking a conversation read, happen
// under the stripe of the conversation so that notification order equals
// persistence order. Two conversations may share a stripe.
type ConversationLocks struct {
	stripes []sync.Mutex
}

func NewConversationLocks(stripes int) *ConversationLocks {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &ConversationLocks{stripes: make([]sync.Mutex, stripes)}
}

// Lock blocks until the conversation stripe is held and returns its release.
func (l *ConversationLocks) Lock(key domain.ConversationKey) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	mu.Lock()
	return mu.Unlock
}
