package store

import "container/list"

// NullStore tracks records without keeping their payloads.
// Every record added to it gets the store's fixed status and its entry is discarded.
type NullStore struct {
	recordList
	status Status
}

// NewNullStore creates a null store assigning status to its records.
func NewNullStore(status Status) *NullStore {
	return &NullStore{recordList: newRecordList(), status: status}
}

func (s *NullStore) Add(r *Record) error {
	mustBeFree(s, r)
	r.AddStoreData(s, s.link(r), nil, nil)
	r.SetStore(s)
	r.SetStatus(s.status)
	if e := r.TakeEntry(); e != nil {
		e.Discard()
	}
	return nil
}

func (s *NullStore) Remove(r *Record) error {
	mustOwn(s, r)
	s.detach(r)
	return nil
}

func (s *NullStore) Evict(r *Record) {
	mustOwn(s, r)
	s.detach(r)
}

func (s *NullStore) Zap(r *Record) {
	mustOwn(s, r)
	s.detach(r)
	r.Free()
}

func (s *NullStore) detach(r *Record) {
	s.unlink(r.StoreData(s).(*list.Element))
	r.RemoveStoreData(s, false)
	r.SetStore(nil)
	r.SetStatus(StatusUndefined)
}

// Size is always zero; a null store holds no bytes.
func (s *NullStore) Size() int64 {
	return 0
}

func (s *NullStore) Pop() (*Record, error) {
	r := s.Peek()
	if r == nil {
		return nil, nil
	}
	return r, s.Remove(r)
}

func (s *NullStore) Peek() *Record {
	return s.front()
}

// Close detaches all remaining records.
func (s *NullStore) Close() error {
	s.each(s.detach)
	return nil
}
