package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// maxDepth bounds nested calls
const maxDepth = 1024

// Contract is code bound to an address. Input is ABI calldata (selector ++ arguments),
// the return value is ABI-encoded output. A returned error reverts the call frame.
type Contract interface {
	Call(env *Env, input []byte) ([]byte, error)
}

// Constructor is implemented by contracts that initialise storage on deployment
type Constructor interface {
	Construct(env *Env) error
}

type callKind int

const (
	kindCall callKind = iota
	kindDelegate
	kindStatic
)

// tx carries per-transaction context shared by every frame
type tx struct {
	now       uint64
	origin    common.Address
	events    []Event
	violation bool
	created   common.Address
}

// Env is the execution context of one call frame
type Env struct {
	ledger   *Ledger
	tx       *tx
	readOnly bool
	depth    int

	// Caller is the immediate sender (msg.sender)
	Caller common.Address
	// Address is the account whose storage this frame reads and writes
	Address common.Address
}

// Now returns the transaction timestamp
func (e *Env) Now() uint64 {
	return e.tx.now
}

// Origin returns the account that submitted the transaction
func (e *Env) Origin() common.Address {
	return e.tx.origin
}

// ReadOnly reports whether the frame runs under a static call
func (e *Env) ReadOnly() bool {
	return e.readOnly
}

// HasCode reports whether addr holds executable code
func (e *Env) HasCode(addr common.Address) bool {
	return e.ledger.state.GetCodeSize(addr) > 0
}

// Call runs to's code in to's storage with this frame's address as sender
func (e *Env) Call(to common.Address, input []byte) ([]byte, error) {
	return e.invoke(kindCall, to, input)
}

// DelegateCall runs to's code in this frame's storage, keeping the sender
func (e *Env) DelegateCall(to common.Address, input []byte) ([]byte, error) {
	return e.invoke(kindDelegate, to, input)
}

// StaticCall is Call with every storage write and event forbidden
func (e *Env) StaticCall(to common.Address, input []byte) ([]byte, error) {
	return e.invoke(kindStatic, to, input)
}

// Emit records an event. Events of reverted frames are discarded.
func (e *Env) Emit(name string, data any) {
	if e.readOnly {
		e.tx.violation = true
		return
	}
	e.tx.events = append(e.tx.events, Event{Address: e.Address, Name: name, Data: data})
}

// Create deploys c at the address derived from this frame's account and nonce
func (e *Env) Create(c Contract) (common.Address, error) {
	if e.readOnly {
		return common.Address{}, ErrWriteProtection
	}
	if e.depth+1 > maxDepth {
		return common.Address{}, ErrDepth
	}

	st := e.ledger.state
	nonce := st.GetNonce(e.Address)
	addr := crypto.CreateAddress(e.Address, nonce)
	st.SetNonce(e.Address, nonce+1)

	if st.GetCodeSize(addr) > 0 {
		return common.Address{}, fmt.Errorf("%w: %s", ErrContractExists, addr.Hex())
	}

	snap := st.Snapshot()
	mark := len(e.tx.events)

	st.CreateAccount(addr)
	st.SetNonce(addr, 1)
	st.SetCode(addr, []byte(fmt.Sprintf("%T", c)))
	e.ledger.contracts[addr] = c

	if ctor, ok := c.(Constructor); ok {
		child := &Env{ledger: e.ledger, tx: e.tx, depth: e.depth + 1, Caller: e.Address, Address: addr}
		if err := ctor.Construct(child); err != nil {
			st.RevertToSnapshot(snap)
			e.tx.events = e.tx.events[:mark]
			return common.Address{}, err
		}
	}
	return addr, nil
}

func (e *Env) invoke(kind callKind, to common.Address, input []byte) ([]byte, error) {
	if e.depth+1 > maxDepth {
		return nil, ErrDepth
	}
	code := e.ledger.contractAt(to)
	if code == nil {
		// Calls to plain accounts succeed without effect.
		return nil, nil
	}

	child := &Env{
		ledger:   e.ledger,
		tx:       e.tx,
		readOnly: e.readOnly || kind == kindStatic,
		depth:    e.depth + 1,
		Caller:   e.Address,
		Address:  to,
	}
	if kind == kindDelegate {
		child.Caller = e.Caller
		child.Address = e.Address
	}

	st := e.ledger.state
	snap := st.Snapshot()
	mark := len(e.tx.events)

	ret, err := code.Call(child, input)
	if child.readOnly && !e.readOnly {
		if err == nil && e.tx.violation {
			err = ErrWriteProtection
		}
		e.tx.violation = false
	}
	if err != nil {
		st.RevertToSnapshot(snap)
		e.tx.events = e.tx.events[:mark]
		return nil, err
	}
	return ret, nil
}

// Dispatch resolves the method addressed by input's selector and decodes its arguments
func Dispatch(contractABI *abi.ABI, input []byte) (*abi.Method, []interface{}, error) {
	if len(input) < 4 {
		return nil, nil, ErrNoSelector
	}
	method, err := contractABI.MethodById(input[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %x", ErrUnknownSelector, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s arguments: %w", method.Name, err)
	}
	return method, args, nil
}
