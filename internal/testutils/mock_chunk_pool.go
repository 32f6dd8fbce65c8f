package testutils

import "sync/atomic"

// MockChunkPool hands out heap allocated scratch buffers and counts calls,
// so tests can check that every buffer taken is given back.
type MockChunkPool struct {
	getCalls atomic.Int64
	putCalls atomic.Int64
}

func (p *MockChunkPool) Get(size int) []byte {
	p.getCalls.Add(1)
	return make([]byte, size)
}

func (p *MockChunkPool) Put(c []byte) {
	p.putCalls.Add(1)
}

func (p *MockChunkPool) GetCalls() int64 {
	return p.getCalls.Load()
}

func (p *MockChunkPool) PutCalls() int64 {
	return p.putCalls.Load()
}

func (p *MockChunkPool) ChunksInUse() int64 {
	return p.GetCalls() - p.PutCalls()
}

func (p *MockChunkPool) Reset() {
	p.getCalls.Store(0)
	p.putCalls.Store(0)
}
