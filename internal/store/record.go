package store

import "fmt"

// Status is the lifecycle state of a record, tracking which store owns it.
type Status int

const (
	StatusUndefined Status = iota // Not in any store.
	StatusStored                  // Held by the cache's primary store.
	StatusFetched                 // Payload handed out to a caller.
	StatusDiscarded               // Evicted; the payload is gone.
)

func (s Status) String() string {
	switch s {
	case StatusUndefined:
		return "undefined"
	case StatusStored:
		return "stored"
	case StatusFetched:
		return "fetched"
	case StatusDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// StoreDataFunc is called with the side data a store attached to a record.
type StoreDataFunc func(s Store, r *Record, data any)

type storeData struct {
	data  any
	free  StoreDataFunc
	dirty StoreDataFunc
}

// Record is the bookkeeping a cache keeps for one entry.
//
// A record can carry side data for several stores at once, e.g. a swap store
// remembers the disk slot of an entry while the record lives in another store.
// Not safe for concurrent use.
type Record struct {
	id        uint64
	status    Status
	store     Store
	entry     Entry
	size      int64
	storeData map[Store]*storeData
}

// NewRecord creates an undefined record for the entry.
func NewRecord(id uint64, e Entry) *Record {
	r := &Record{
		id:        id,
		storeData: make(map[Store]*storeData),
	}
	r.SetEntry(e)
	return r
}

func (r *Record) ID() uint64 {
	return r.id
}

func (r *Record) Status() Status {
	return r.status
}

func (r *Record) SetStatus(s Status) {
	r.status = s
}

// Store returns the store currently holding the record, or nil.
func (r *Record) Store() Store {
	return r.store
}

func (r *Record) SetStore(s Store) {
	r.store = s
}

// Entry returns the entry, which may have released its payload while swapped out.
func (r *Record) Entry() Entry {
	return r.entry
}

// Size returns the flattened size of the entry captured by SetEntry.
func (r *Record) Size() int64 {
	return r.size
}

// SetEntry hands the entry to the record.
func (r *Record) SetEntry(e Entry) {
	r.entry = e
	if e != nil {
		r.size = int64(e.FlattenedSize())
	}
}

// TakeEntry removes the entry from the record and returns it.
func (r *Record) TakeEntry() Entry {
	e := r.entry
	r.entry = nil
	return e
}

// AddStoreData attaches side data for store s, replacing any previous data
// without running its free func.
func (r *Record) AddStoreData(s Store, data any, free, dirty StoreDataFunc) {
	r.storeData[s] = &storeData{data: data, free: free, dirty: dirty}
}

// RemoveStoreData detaches the side data of store s, running its free func if runFree is set.
func (r *Record) RemoveStoreData(s Store, runFree bool) {
	sd, ok := r.storeData[s]
	if !ok {
		return
	}
	delete(r.storeData, s)
	if runFree && sd.free != nil {
		sd.free(s, r, sd.data)
	}
}

// StoreData returns the side data of store s, or nil.
func (r *Record) StoreData(s Store) any {
	if sd, ok := r.storeData[s]; ok {
		return sd.data
	}
	return nil
}

// Dirty tells every store holding side data that the entry's bytes changed.
func (r *Record) Dirty() {
	for s, sd := range r.storeData {
		if sd.dirty != nil {
			sd.dirty(s, r, sd.data)
		}
	}
}

// Free releases everything the record holds. The record must not be used afterwards.
func (r *Record) Free() {
	for s := range r.storeData {
		r.RemoveStoreData(s, true)
	}
	if e := r.TakeEntry(); e != nil {
		e.Discard()
	}
	r.store = nil
	r.status = StatusUndefined
}
