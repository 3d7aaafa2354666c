package service

import (
	"sync"

	"github.com/gdmt-audit-server/internal/domain"
)

const subscriberBuffer = 16

// Broadcaster fans record updates out to subscribers of that record. Slow subscribers miss
// updates rather than block the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan domain.ResolutionRecord
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[int]chan domain.ResolutionRecord)}
}

// Subscribe returns a channel of updates for the record and a function that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe(recordID string) (<-chan domain.ResolutionRecord, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.ResolutionRecord, subscriberBuffer)
	if b.subs[recordID] == nil {
		b.subs[recordID] = make(map[int]chan domain.ResolutionRecord)
	}
	b.subs[recordID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[recordID], id)
			if len(b.subs[recordID]) == 0 {
				delete(b.subs, recordID)
			}
			close(ch)
		})
	}
}

// Publish delivers a copy of the record to its subscribers.
func (b *Broadcaster) Publish(rec domain.ResolutionRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[rec.ID] {
		select {
		case ch <- rec.Clone():
		default:
		}
	}
}

// Subscribers returns the number of subscribers for a record.
func (b *Broadcaster) Subscribers(recordID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[recordID])
}
