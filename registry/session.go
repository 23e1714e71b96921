package registry

import (
	"context"
	"math/big"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// Grant is a contract's authentication record
type Grant struct {
	State GrantState
	Since uint64
}

// Session is a typed handle on a deployed registry
type Session struct {
	contract *ledger.BoundContract
}

// Deploy deploys a registry from owner and returns a session on it
func Deploy(ctx context.Context, l *ledger.Ledger, owner common.Address, delay time.Duration) (*Session, error) {
	addr, _, err := l.Deploy(ctx, owner, New(delay))
	if err != nil {
		return nil, err
	}
	return NewSession(l, addr), nil
}

// NewSession binds a session to the registry at addr
func NewSession(l *ledger.Ledger, addr common.Address) *Session {
	return &Session{contract: ledger.NewBoundContract(l, addr, &chain.RegistryABI)}
}

// Address returns the registry address
func (s *Session) Address() common.Address {
	return s.contract.Address()
}

// RegisterProxy creates a proxy for from
func (s *Session) RegisterProxy(ctx context.Context, from common.Address) (common.Address, error) {
	return s.transactAddress(ctx, from, "registerProxy")
}

// RegisterProxyFor creates a proxy on behalf of user
func (s *Session) RegisterProxyFor(ctx context.Context, from, user common.Address) (common.Address, error) {
	return s.transactAddress(ctx, from, "registerProxyFor", user)
}

// RegisterProxyOverride replaces from's directory entry with a fresh proxy
func (s *Session) RegisterProxyOverride(ctx context.Context, from common.Address) (common.Address, error) {
	return s.transactAddress(ctx, from, "registerProxyOverride")
}

// GrantInitialAuthentication authenticates the first contract without delay
func (s *Session) GrantInitialAuthentication(ctx context.Context, from, contract common.Address) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "grantInitialAuthentication", contract)
}

// StartGrantAuthentication opens the waiting period for contract
func (s *Session) StartGrantAuthentication(ctx context.Context, from, contract common.Address) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "startGrantAuthentication", contract)
}

// EndGrantAuthentication completes a matured grant
func (s *Session) EndGrantAuthentication(ctx context.Context, from, contract common.Address) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "endGrantAuthentication", contract)
}

// RevokeAuthentication withdraws a grant
func (s *Session) RevokeAuthentication(ctx context.Context, from, contract common.Address) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "revokeAuthentication", contract)
}

// TransferOwnership hands registry ownership to newOwner
func (s *Session) TransferOwnership(ctx context.Context, from, newOwner common.Address) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "transferOwnership", newOwner)
}

// TransferAccessTo moves a directory entry; only the proxy itself can do this
func (s *Session) TransferAccessTo(ctx context.Context, from, user, newUser common.Address) (*ledger.Receipt, error) {
	return s.contract.Transact(ctx, from, "transferAccessTo", user, newUser)
}

// Proxies returns the proxy registered for user, or the zero address
func (s *Session) Proxies(ctx context.Context, user common.Address) (common.Address, error) {
	return s.callAddress(ctx, "proxies", user)
}

// IsAuthenticated reports whether contract may drive user proxies
func (s *Session) IsAuthenticated(ctx context.Context, contract common.Address) (bool, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "contracts", contract)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// GrantState returns the authentication record of contract
func (s *Session) GrantState(ctx context.Context, contract common.Address) (Grant, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "grantState", contract)
	if err != nil {
		return Grant{}, err
	}
	return Grant{
		State: GrantState(out[0].(uint8)),
		Since: out[1].(*big.Int).Uint64(),
	}, nil
}

// DelegateProxyImplementation returns the implementation new proxies use
func (s *Session) DelegateProxyImplementation(ctx context.Context) (common.Address, error) {
	return s.callAddress(ctx, "delegateProxyImplementation")
}

// Owner returns the registry owner
func (s *Session) Owner(ctx context.Context) (common.Address, error) {
	return s.callAddress(ctx, "owner")
}

// InitialAddressSet reports whether the initial grant was used
func (s *Session) InitialAddressSet(ctx context.Context) (bool, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "initialAddressSet")
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// Delay returns the grant waiting period
func (s *Session) Delay(ctx context.Context) (time.Duration, error) {
	out, err := s.contract.Call(ctx, common.Address{}, "DELAY_PERIOD")
	if err != nil {
		return 0, err
	}
	return time.Duration(out[0].(*big.Int).Int64()) * time.Second, nil
}

func (s *Session) transactAddress(ctx context.Context, from common.Address, method string, args ...interface{}) (common.Address, error) {
	receipt, err := s.contract.Transact(ctx, from, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	out, err := s.contract.Unpack(method, receipt.Return)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (s *Session) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	out, err := s.contract.Call(ctx, common.Address{}, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}
