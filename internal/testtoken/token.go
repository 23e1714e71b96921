// Package testtoken is a minimal ERC20 used as a settlement asset in tests and demos.
package testtoken

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
)

var (
	slotTotalSupply = ledger.Slot(0)
	slotBalances    = ledger.Slot(1)
	slotAllowances  = ledger.Slot(2)
)

// TransferEvent is emitted on every balance movement
type TransferEvent struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

// Token is an unrestricted-mint ERC20
type Token struct{}

// Call dispatches ERC20 methods
func (t *Token) Call(env *ledger.Env, input []byte) ([]byte, error) {
	method, args, err := ledger.Dispatch(&chain.ERC20ABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "totalSupply":
		return method.Outputs.Pack(env.LoadBig(slotTotalSupply))
	case "balanceOf":
		return method.Outputs.Pack(env.LoadBig(balanceSlot(args[0].(common.Address))))
	case "allowance":
		return method.Outputs.Pack(env.LoadBig(allowanceSlot(args[0].(common.Address), args[1].(common.Address))))
	case "approve":
		env.StoreBig(allowanceSlot(env.Caller, args[0].(common.Address)), args[1].(*big.Int))
		return method.Outputs.Pack(true)
	case "transfer":
		if err := move(env, env.Caller, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)
	case "transferFrom":
		from, to, amount := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
		slot := allowanceSlot(from, env.Caller)
		allowance := env.LoadBig(slot)
		if allowance.Cmp(amount) < 0 {
			return nil, ErrInsufficientAllowance
		}
		env.StoreBig(slot, new(big.Int).Sub(allowance, amount))
		if err := move(env, from, to, amount); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)
	case "mint":
		to, amount := args[0].(common.Address), args[1].(*big.Int)
		env.StoreBig(slotTotalSupply, new(big.Int).Add(env.LoadBig(slotTotalSupply), amount))
		env.StoreBig(balanceSlot(to), new(big.Int).Add(env.LoadBig(balanceSlot(to)), amount))
		env.Emit("Transfer", TransferEvent{To: to, Value: amount})
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownSelector, method.Name)
}

func move(env *ledger.Env, from, to common.Address, amount *big.Int) error {
	balance := env.LoadBig(balanceSlot(from))
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	env.StoreBig(balanceSlot(from), new(big.Int).Sub(balance, amount))
	env.StoreBig(balanceSlot(to), new(big.Int).Add(env.LoadBig(balanceSlot(to)), amount))
	env.Emit("Transfer", TransferEvent{From: from, To: to, Value: amount})
	return nil
}

func balanceSlot(owner common.Address) common.Hash {
	return ledger.MapSlot(slotBalances, ledger.AddressKey(owner))
}

func allowanceSlot(owner, spender common.Address) common.Hash {
	return ledger.MapSlot(ledger.MapSlot(slotAllowances, ledger.AddressKey(owner)), ledger.AddressKey(spender))
}

// Session is a typed handle on a deployed token
type Session struct {
	contract *ledger.BoundContract
}

// Deploy deploys a token from the given account
func Deploy(ctx context.Context, l *ledger.Ledger, from common.Address) (*Session, error) {
	addr, _, err := l.Deploy(ctx, from, &Token{})
	if err != nil {
		return nil, err
	}
	return &Session{contract: ledger.NewBoundContract(l, addr, &chain.ERC20ABI)}, nil
}

// Address returns the token address
func (s *Session) Address() common.Address {
	return s.contract.Address()
}

// Mint credits amount to to
func (s *Session) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	_, err := s.contract.Transact(ctx, to, "mint", to, amount)
	return err
}

// Approve lets spender pull amount from from
func (s *Session) Approve(ctx context.Context, from, spender common.Address, amount *big.Int) error {
	_, err := s.contract.Transact(ctx, from, "approve", spender, amount)
	return err
}

// Transfer moves amount from from to to
func (s *Session) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	_, err := s.contract.Transact(ctx, from, "transfer", to, amount)
	return err
}

// BalanceOf returns owner's balance
func (s *Session) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Allowance returns what spender may still pull from owner
func (s *Session) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
