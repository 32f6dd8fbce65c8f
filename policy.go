package bufpage

import "github.com/holmberd/go-bufpage/internal/store"

// Host is the view of a Cache an EvictionPolicy works against.
// Its methods are called with the cache lock held.
type Host interface {
	Size() int64             // Bytes held by the primary store.
	Primary() store.Store    // The store entries are inserted into.
	Discard(r *store.Record) // Evicts a stored record, marking it discarded.
}

// EvictionPolicy decides where a cache puts entries and what it evicts to
// make room for them.
type EvictionPolicy interface {
	// CheckRoomFor reports whether an entry of size bytes fits, evicting
	// older entries if the policy allows it.
	CheckRoomFor(h Host, size int64) bool
	InsertRecord(h Host, r *store.Record) error
	Capacity() int64
	IsPersistent() bool
}

// CapacityPolicy bounds the primary store to a number of bytes and evicts the
// oldest entries first. A persistent policy never evicts.
type CapacityPolicy struct {
	capacity   int64
	persistent bool
}

func NewCapacityPolicy(capacity int64, persistent bool) *CapacityPolicy {
	return &CapacityPolicy{capacity: capacity, persistent: persistent}
}

func (p *CapacityPolicy) CheckRoomFor(h Host, size int64) bool {
	if size > p.capacity {
		return false
	}
	for h.Size()+size > p.capacity {
		if p.persistent {
			return false
		}
		r := h.Primary().Peek()
		if r == nil {
			return false
		}
		h.Discard(r)
	}
	return true
}

func (p *CapacityPolicy) InsertRecord(h Host, r *store.Record) error {
	return h.Primary().Add(r)
}

func (p *CapacityPolicy) Capacity() int64 {
	return p.capacity
}

func (p *CapacityPolicy) IsPersistent() bool {
	return p.persistent
}
