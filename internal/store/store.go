package store

import (
	"container/list"
	"fmt"
)

// Store is a container of records. Records are kept in insertion order,
// so Peek and Pop return the oldest one.
type Store interface {
	Add(r *Record) error    // Add takes ownership of the record.
	Remove(r *Record) error // Remove detaches the record, leaving its entry populated.
	Evict(r *Record)        // Evict detaches the record and drops the store's copy of its payload unread.
	Zap(r *Record)          // Zap removes the record and frees it.
	Size() int64            // Size returns the bytes held by the store.
	Len() int               // Len returns the number of records.
	Pop() (*Record, error)  // Pop removes and returns the oldest record, or nil.
	Peek() *Record          // Peek returns the oldest record without removing it, or nil.
	Close() error           // Close releases the store's resources.
}

// recordList is the insertion ordered record list shared by all stores.
// The list element of a record is attached to it as the store's side data.
type recordList struct {
	records *list.List
}

func newRecordList() recordList {
	return recordList{records: list.New()}
}

// link appends the record and returns its list element.
func (l *recordList) link(r *Record) *list.Element {
	return l.records.PushBack(r)
}

func (l *recordList) unlink(e *list.Element) {
	l.records.Remove(e)
}

func (l *recordList) front() *Record {
	e := l.records.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Record)
}

func (l *recordList) Len() int {
	return l.records.Len()
}

// each calls f for every record, oldest first. f may unlink the current record.
func (l *recordList) each(f func(r *Record)) {
	for e := l.records.Front(); e != nil; {
		next := e.Next()
		f(e.Value.(*Record))
		e = next
	}
}

// mustOwn panics unless the record currently lives in s.
func mustOwn(s Store, r *Record) {
	if r.Store() != s {
		panic(fmt.Errorf("invariant violation: record %d is in %T, not %T", r.ID(), r.Store(), s))
	}
}

// mustBeFree panics if the record is still owned by a store.
func mustBeFree(s Store, r *Record) {
	if r.Store() != nil {
		panic(fmt.Errorf("invariant violation: record %d added to %T while in %T", r.ID(), s, r.Store()))
	}
}
