package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// BoundContract packs calls to one deployed contract and unpacks its results
type BoundContract struct {
	ledger  *Ledger
	address common.Address
	abi     *abi.ABI
}

// NewBoundContract binds contractABI to address on l
func NewBoundContract(l *Ledger, address common.Address, contractABI *abi.ABI) *BoundContract {
	return &BoundContract{ledger: l, address: address, abi: contractABI}
}

// Address returns the bound address
func (b *BoundContract) Address() common.Address {
	return b.address
}

// Ledger returns the ledger the contract lives on
func (b *BoundContract) Ledger() *Ledger {
	return b.ledger
}

// Transact submits method from the given account
func (b *BoundContract) Transact(ctx context.Context, from common.Address, method string, args ...interface{}) (*Receipt, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return b.ledger.Transact(ctx, from, b.address, input)
}

// Call runs a read-only method as seen by from
func (b *BoundContract) Call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	ret, err := b.ledger.View(ctx, from, b.address, input)
	if err != nil {
		return nil, err
	}
	return b.Unpack(method, ret)
}

// Unpack decodes the output of method, e.g. from a receipt's return data
func (b *BoundContract) Unpack(method string, data []byte) ([]interface{}, error) {
	out, err := b.abi.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}
