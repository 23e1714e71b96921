package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Slot returns the key of fixed storage slot i
func Slot(i uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(i))
}

// NamedSlot returns a slot derived from a namespace string. Used where two
// pieces of code share one storage space and sequential slots would collide.
func NamedSlot(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// MapSlot returns the key of mapping[key] rooted at slot: keccak256(key ++ slot)
func MapSlot(slot common.Hash, key common.Hash) common.Hash {
	return crypto.Keccak256Hash(key.Bytes(), slot.Bytes())
}

// AddressKey left-pads an address into a mapping key
func AddressKey(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// Load reads a raw word from the current storage context
func (e *Env) Load(slot common.Hash) common.Hash {
	return e.ledger.state.GetState(e.Address, slot)
}

// Store writes a raw word. Writes inside a static context are recorded as a
// violation and fail the enclosing static call.
func (e *Env) Store(slot common.Hash, value common.Hash) {
	if e.readOnly {
		e.tx.violation = true
		return
	}
	e.ledger.state.SetState(e.Address, slot, value)
}

// LoadAddress reads an address word
func (e *Env) LoadAddress(slot common.Hash) common.Address {
	return common.BytesToAddress(e.Load(slot).Bytes())
}

// StoreAddress writes an address word
func (e *Env) StoreAddress(slot common.Hash, addr common.Address) {
	e.Store(slot, AddressKey(addr))
}

// LoadBool reads a boolean word
func (e *Env) LoadBool(slot common.Hash) bool {
	return e.Load(slot) != (common.Hash{})
}

// StoreBool writes a boolean word
func (e *Env) StoreBool(slot common.Hash, v bool) {
	var word common.Hash
	if v {
		word[common.HashLength-1] = 1
	}
	e.Store(slot, word)
}

// LoadBig reads an unsigned 256-bit word
func (e *Env) LoadBig(slot common.Hash) *big.Int {
	return e.Load(slot).Big()
}

// StoreBig writes an unsigned 256-bit word
func (e *Env) StoreBig(slot common.Hash, v *big.Int) {
	if v == nil {
		v = new(big.Int)
	}
	e.Store(slot, common.BigToHash(v))
}

// LoadUint64 reads a word that is known to fit in 64 bits
func (e *Env) LoadUint64(slot common.Hash) uint64 {
	return e.LoadBig(slot).Uint64()
}

// StoreUint64 writes a 64-bit word
func (e *Env) StoreUint64(slot common.Hash, v uint64) {
	e.StoreBig(slot, new(big.Int).SetUint64(v))
}
