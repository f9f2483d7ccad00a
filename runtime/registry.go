package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"hash/fnv"
	"sync"
)

const defaultShards = 32

type bucket map[domain.ConnectionID]contract.Connection

type shard struct {
	mu      sync.RWMutex
	buckets map[domain.UserID]bucket
}

// ownerShard resolves a connection to its user so Unregister does not need one.
type ownerShard struct {
	mu     sync.Mutex
	owners map[domain.ConnectionID]domain.UserID
}

// Registry maps a user to its live connections.
// Users are spread over independent shards so that registrations of one user
// never contend with lookups of another one living in a different shard.
// Lock order is always owner shard, then user shard.
type Registry struct {
	shards      []*shard
	ownerShards []*ownerShard
}

func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = defaultShards
	}
	shards := make([]*shard, shardCount)
	ownerShards := make([]*ownerShard, shardCount)
	for i := range shards {
		shards[i] = &shard{buckets: make(map[domain.UserID]bucket)}
		ownerShards[i] = &ownerShard{owners: make(map[domain.ConnectionID]domain.UserID)}
	}
	return &Registry{shards: shards, ownerShards: ownerShards}
}

func (r *Registry) shardFor(userID domain.UserID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

func (r *Registry) ownerShardFor(connID domain.ConnectionID) *ownerShard {
	h := fnv.New32a()
	_, _ = h.Write(connID[:])
	return r.ownerShards[h.Sum32()%uint32(len(r.ownerShards))]
}

// Register adds a connection to the user's bucket, creating the bucket on first use.
// A connection already owned by another user is refused.
func (r *Registry) Register(userID domain.UserID, conn contract.Connection) error {
	connID := conn.ConnectionID()

	o := r.ownerShardFor(connID)
	o.mu.Lock()
	defer o.mu.Unlock()
	if owner, ok := o.owners[connID]; ok && owner != userID {
		return fmt.Errorf("%w: %s belongs to %s", errors.ErrConnectionOwned, connID, owner)
	}
	o.owners[connID] = userID

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[userID]
	if !ok {
		b = make(bucket)
		s.buckets[userID] = b
	}
	b[connID] = conn
	return nil
}

// Unregister removes the connection from whatever bucket holds it.
// Unknown connections are ignored and empty buckets are dropped.
func (r *Registry) Unregister(connectionID domain.ConnectionID) {
	o := r.ownerShardFor(connectionID)
	o.mu.Lock()
	defer o.mu.Unlock()
	userID, ok := o.owners[connectionID]
	if !ok {
		return
	}
	delete(o.owners, connectionID)

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[userID]
	if !ok {
		return
	}
	delete(b, connectionID)
	if len(b) == 0 {
		delete(s.buckets, userID)
	}
}

// ConnectionsFor returns a snapshot of the user's live connections.
// The slice is owned by the caller and may be stale as soon as it is returned.
func (r *Registry) ConnectionsFor(userID domain.UserID) []contract.Connection {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[userID]
	if !ok {
		return nil
	}
	res := make([]contract.Connection, 0, len(b))
	for _, conn := range b {
		res = append(res, conn)
	}
	return res
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[userID]
	return ok
}

// Count returns the number of online users and live connections.
func (r *Registry) Count() (users int, connections int) {
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.buckets)
		for _, b := range s.buckets {
			connections += len(b)
		}
		s.mu.RUnlock()
	}
	return users, connections
}
