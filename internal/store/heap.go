package store

import "container/list"

// HeapStore keeps records and their payloads in process memory.
type HeapStore struct {
	recordList
	size int64
}

func NewHeapStore() *HeapStore {
	return &HeapStore{recordList: newRecordList()}
}

func (s *HeapStore) Add(r *Record) error {
	mustBeFree(s, r)
	r.AddStoreData(s, s.link(r), nil, nil)
	r.SetStore(s)
	r.SetStatus(StatusStored)
	s.size += r.Size()
	return nil
}

func (s *HeapStore) Remove(r *Record) error {
	mustOwn(s, r)
	s.detach(r)
	return nil
}

// Evict detaches the record. The entry stays with the record for its next
// owner to discard.
func (s *HeapStore) Evict(r *Record) {
	mustOwn(s, r)
	s.detach(r)
}

func (s *HeapStore) Zap(r *Record) {
	mustOwn(s, r)
	s.detach(r)
	r.Free()
}

func (s *HeapStore) detach(r *Record) {
	s.unlink(r.StoreData(s).(*list.Element))
	r.RemoveStoreData(s, false)
	r.SetStore(nil)
	r.SetStatus(StatusUndefined)
	s.size -= r.Size()
}

func (s *HeapStore) Size() int64 {
	return s.size
}

func (s *HeapStore) Pop() (*Record, error) {
	r := s.Peek()
	if r == nil {
		return nil, nil
	}
	return r, s.Remove(r)
}

func (s *HeapStore) Peek() *Record {
	return s.front()
}

// Close frees all remaining records.
func (s *HeapStore) Close() error {
	s.each(s.Zap)
	return nil
}
