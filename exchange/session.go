package exchange

import (
	"context"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// Session is a typed handle on a deployed exchange
type Session struct {
	contract *ledger.BoundContract
}

// Deploy deploys an exchange from the given account
func Deploy(ctx context.Context, l *ledger.Ledger, from common.Address, chainID *big.Int, registries []common.Address, personalSignPrefix string) (*Session, error) {
	addr, _, err := l.Deploy(ctx, from, New(chainID, registries, personalSignPrefix))
	if err != nil {
		return nil, err
	}
	return NewSession(l, addr), nil
}

// NewSession binds a session to the exchange at addr
func NewSession(l *ledger.Ledger, addr common.Address) *Session {
	return &Session{contract: ledger.NewBoundContract(l, addr, &chain.ExchangeABI)}
}

// Address returns the exchange address
func (s *Session) Address() common.Address {
	return s.contract.Address()
}

// HashOrder returns the order hash as computed by the exchange
func (s *Session) HashOrder(ctx context.Context, order *chain.Order) (common.Hash, error) {
	return s.callHash(ctx, common.Address{}, "hashOrder_", orderArgs(order)...)
}

// HashToSign wraps an order hash with the exchange domain separator
func (s *Session) HashToSign(ctx context.Context, orderHash common.Hash) (common.Hash, error) {
	return s.callHash(ctx, common.Address{}, "hashToSign_", orderHash)
}

// DomainSeparator returns the EIP712 domain separator of the exchange
func (s *Session) DomainSeparator(ctx context.Context) (common.Hash, error) {
	return s.callHash(ctx, common.Address{}, "DOMAIN_SEPARATOR")
}

// ValidateOrderParameters checks the order's static target and time window at the current ledger time
func (s *Session) ValidateOrderParameters(ctx context.Context, order *chain.Order) (bool, error) {
	return s.callBool(ctx, common.Address{}, "validateOrderParameters_", orderArgs(order)...)
}

// ValidateOrderAuthorization reports whether maker authorized hash, as seen by sender
func (s *Session) ValidateOrderAuthorization(ctx context.Context, sender common.Address, hash common.Hash, maker common.Address, signature []byte) (bool, error) {
	return s.callBool(ctx, sender, "validateOrderAuthorization_", hash, maker, nonNil(signature))
}

// ApproveOrderHash pre-approves hash for from
func (s *Session) ApproveOrderHash(ctx context.Context, from common.Address, hash common.Hash) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "approveOrderHash_", hash)
}

// ApproveOrder pre-approves a full order; from must be its maker
func (s *Session) ApproveOrder(ctx context.Context, from common.Address, order *chain.Order, orderbookInclusionDesired bool) (*ledger.Receipt, error) {
	args := append(orderArgs(order), orderbookInclusionDesired)
	return s.contract.Transact(ctx, from, "approveOrder_", args...)
}

// SetOrderFill rewrites from's fill record for hash. Setting it to the
// order's maximum fill cancels the order.
func (s *Session) SetOrderFill(ctx context.Context, from common.Address, hash common.Hash, fill *big.Int) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "setOrderFill_", hash, fill)
}

// AtomicMatch settles m with from as the matcher
func (s *Session) AtomicMatch(ctx context.Context, from common.Address, m *Match) (*ledger.Receipt, error) {
	input, err := m.Pack()
	if err != nil {
		return nil, err
	}
	return s.contract.Ledger().Transact(ctx, from, s.contract.Address(), input)
}

// Fills returns maker's fill record for hash
func (s *Session) Fills(ctx context.Context, maker common.Address, hash common.Hash) (*big.Int, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "fills", maker, hash)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Approved reports whether maker pre-approved hash
func (s *Session) Approved(ctx context.Context, maker common.Address, hash common.Hash) (bool, error) {
	return s.callBool(ctx, common.Address{}, "approved", maker, hash)
}

// Registries reports whether the exchange accepts proxies from registry
func (s *Session) Registries(ctx context.Context, registry common.Address) (bool, error) {
	return s.callBool(ctx, common.Address{}, "registries", registry)
}

// Name returns the EIP712 domain name
func (s *Session) Name(ctx context.Context) (string, error) {
	return s.callString(ctx, "name")
}

// Version returns the EIP712 domain version
func (s *Session) Version(ctx context.Context) (string, error) {
	return s.callString(ctx, "version")
}

// ChainID returns the chain id the exchange signs for
func (s *Session) ChainID(ctx context.Context) (*big.Int, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "chainId")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (s *Session) callHash(ctx context.Context, from common.Address, method string, args ...interface{}) (common.Hash, error) {
	out, err := s.contract.Call(ctx, from, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

func (s *Session) callBool(ctx context.Context, from common.Address, method string, args ...interface{}) (bool, error) {
	out, err := s.contract.Call(ctx, from, method, args...)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (s *Session) callString(ctx context.Context, method string) (string, error) {
	out, err := s.contract.Call(ctx, common.Address{}, method)
	if err != nil {
		return "", err
	}
	return out[0].(string), nil
}
