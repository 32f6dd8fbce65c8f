package bufpage

import "fmt"

// bankEntry carries the banks of a Buffer while it is paged out.
// Flattened, the banks are laid out back to back.
type bankEntry struct {
	numBanks     int
	bytesPerBank int
	banks        [][]byte // Nil once the payload was flattened or discarded.
}

func newBankEntry(banks [][]byte, bytesPerBank int) *bankEntry {
	return &bankEntry{numBanks: len(banks), bytesPerBank: bytesPerBank, banks: banks}
}

func (e *bankEntry) FlattenedSize() int {
	return e.numBanks * e.bytesPerBank
}

// Flatten copies the banks into dst and releases them.
func (e *bankEntry) Flatten(dst []byte) error {
	if e.banks == nil {
		return ErrNoPayload
	}
	if len(dst) < e.FlattenedSize() {
		return fmt.Errorf("flatten %d bytes into %d: %w", e.FlattenedSize(), len(dst), ErrShortBuffer)
	}
	for i, bank := range e.banks {
		copy(dst[i*e.bytesPerBank:], bank)
	}
	e.banks = nil
	return nil
}

// Unflatten rebuilds the banks from src.
func (e *bankEntry) Unflatten(src []byte) error {
	if len(src) != e.FlattenedSize() {
		return fmt.Errorf("unflatten %d bytes into %d: %w", len(src), e.FlattenedSize(), ErrSizeMismatch)
	}
	banks := make([][]byte, e.numBanks)
	for i := range banks {
		banks[i] = make([]byte, e.bytesPerBank)
		copy(banks[i], src[i*e.bytesPerBank:])
	}
	e.banks = banks
	return nil
}

func (e *bankEntry) Discard() {
	e.banks = nil
}

// takeBanks hands the banks over to the caller.
func (e *bankEntry) takeBanks() [][]byte {
	banks := e.banks
	e.banks = nil
	return banks
}
