package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Event is a log entry emitted by a contract during a committed transaction
type Event struct {
	Address common.Address
	Name    string
	Data    any
}

// Receipt describes a committed transaction. Seq numbers committed
// transactions from 1 in commit order.
type Receipt struct {
	Seq     uint64
	TxHash  common.Hash
	From    common.Address
	To      common.Address
	Created common.Address
	Time    uint64
	Return  []byte
	Events  []Event
}

// Subscriber is notified of every committed transaction in commit order, after
// the state lock is released. A subscriber must not transact on the ledger.
type Subscriber func(*Receipt)

// Ledger is a serialized world state. Every Transact, View and Deploy runs alone
// and either commits completely or leaves no trace.
type Ledger struct {
	mu        sync.Mutex
	id        common.Hash
	seq       uint64
	state     *state.StateDB
	clock     Clock
	logger    *slog.Logger
	contracts map[common.Address]Contract

	// notifyMu is taken before mu is released so deliveries follow commits
	notifyMu    sync.Mutex
	subMu       sync.RWMutex
	subscribers []Subscriber
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLogger sets the ledger logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates an empty ledger backed by an in-memory state database. Every
// ledger gets a random id that salts its transaction hashes, so two ledgers
// never share a hash.
func New(clock Clock, opts ...Option) (*Ledger, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	sdb, err := state.New(types.EmptyRootHash, state.NewDatabase(rawdb.NewMemoryDatabase()), nil)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	id := uuid.New()
	l := &Ledger{
		id:        crypto.Keccak256Hash(id[:]),
		state:     sdb,
		clock:     clock,
		logger:    slog.Default(),
		contracts: make(map[common.Address]Contract),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Subscribe registers fn for committed receipts
func (l *Ledger) Subscribe(fn Subscriber) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// ID returns the random id of this ledger
func (l *Ledger) ID() common.Hash {
	return l.id
}

// Now returns the ledger clock reading
func (l *Ledger) Now() uint64 {
	return l.clock.Now()
}

// HasCode reports whether addr holds a contract
func (l *Ledger) HasCode(addr common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.GetCodeSize(addr) > 0
}

// StorageAt reads one raw storage word
func (l *Ledger) StorageAt(addr common.Address, slot common.Hash) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.GetState(addr, slot)
}

// Deploy creates c from the given account
func (l *Ledger) Deploy(ctx context.Context, from common.Address, c Contract) (common.Address, *Receipt, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, nil, err
	}
	receipt, err := l.execute(from, common.Address{}, nil, func(env *Env) ([]byte, error) {
		addr, err := env.Create(c)
		if err != nil {
			return nil, err
		}
		env.tx.created = addr
		return nil, nil
	})
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("deploy %T: %w", c, err)
	}
	return receipt.Created, receipt, nil
}

// Transact sends input from an account to a contract and commits the result
func (l *Ledger) Transact(ctx context.Context, from, to common.Address, input []byte) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.execute(from, to, input, func(env *Env) ([]byte, error) {
		if env.ledger.contractAt(to) == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoCode, to.Hex())
		}
		return env.Call(to, input)
	})
}

// View executes input read-only and discards every effect
func (l *Ledger) View(ctx context.Context, from, to common.Address, input []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	receipt, err := l.apply(from, to, input, true, func(env *Env) ([]byte, error) {
		if env.ledger.contractAt(to) == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoCode, to.Hex())
		}
		return env.Call(to, input)
	})
	if err != nil {
		return nil, err
	}
	return receipt.Return, nil
}

// execute commits a transaction and delivers its receipt to subscribers
func (l *Ledger) execute(from, to common.Address, input []byte, run func(*Env) ([]byte, error)) (*Receipt, error) {
	l.mu.Lock()
	receipt, err := l.apply(from, to, input, false, run)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.notifyMu.Lock()
	l.mu.Unlock()
	defer l.notifyMu.Unlock()

	l.notify(receipt)
	return receipt, nil
}

// apply runs one transaction. The caller holds mu.
func (l *Ledger) apply(from, to common.Address, input []byte, readOnly bool, run func(*Env) ([]byte, error)) (*Receipt, error) {
	nonce := l.state.GetNonce(from)
	t := &tx{now: l.clock.Now(), origin: from}
	root := &Env{ledger: l, tx: t, readOnly: readOnly, Address: from}

	snap := l.state.Snapshot()
	ret, err := run(root)
	if err == nil && readOnly && t.violation {
		err = ErrWriteProtection
	}
	if err != nil || readOnly {
		l.state.RevertToSnapshot(snap)
		l.state.Finalise(false)
		if err != nil {
			if !readOnly {
				l.logger.Debug("transaction reverted", "from", from.Hex(), "to", to.Hex(), "error", err)
			}
			return nil, err
		}
		return &Receipt{From: from, To: to, Time: t.now, Return: ret}, nil
	}

	// Deployments already advanced the nonce while deriving the new address.
	if l.state.GetNonce(from) == nonce {
		l.state.SetNonce(from, nonce+1)
	}
	l.state.Finalise(false)
	l.seq++

	receipt := &Receipt{
		Seq:     l.seq,
		TxHash:  txHash(l.id, from, to, nonce, input),
		From:    from,
		To:      to,
		Created: t.created,
		Time:    t.now,
		Return:  ret,
		Events:  t.events,
	}
	l.logger.Debug("transaction committed",
		"seq", receipt.Seq,
		"tx_hash", receipt.TxHash.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"events", len(receipt.Events),
	)
	return receipt, nil
}

func (l *Ledger) notify(r *Receipt) {
	l.subMu.RLock()
	subs := append([]Subscriber(nil), l.subscribers...)
	l.subMu.RUnlock()
	for _, fn := range subs {
		fn(r)
	}
}

func (l *Ledger) contractAt(addr common.Address) Contract {
	if l.state.GetCodeSize(addr) == 0 {
		return nil
	}
	return l.contracts[addr]
}

func txHash(ledgerID common.Hash, from, to common.Address, nonce uint64, input []byte) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256Hash(ledgerID.Bytes(), from.Bytes(), to.Bytes(), n[:], input)
}
