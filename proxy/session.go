package proxy

import (
	"context"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// Session is a typed handle on one deployed user proxy
type Session struct {
	logic   *ledger.BoundContract
	wrapper *ledger.BoundContract
}

// NewSession binds a session to the proxy at addr
func NewSession(l *ledger.Ledger, addr common.Address) *Session {
	return &Session{
		logic:   ledger.NewBoundContract(l, addr, &chain.AuthenticatedProxyABI),
		wrapper: ledger.NewBoundContract(l, addr, &chain.DelegateProxyABI),
	}
}

// Address returns the proxy address
func (s *Session) Address() common.Address {
	return s.logic.Address()
}

// User returns the account the proxy acts for
func (s *Session) User(ctx context.Context) (common.Address, error) {
	out, err := s.logic.Call(ctx, common.Address{}, "user")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// Registry returns the registry the proxy consults for authentication
func (s *Session) Registry(ctx context.Context) (common.Address, error) {
	out, err := s.logic.Call(ctx, common.Address{}, "registry")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// Revoked reports whether delegated access is switched off
func (s *Session) Revoked(ctx context.Context) (bool, error) {
	out, err := s.logic.Call(ctx, common.Address{}, "revoked")
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// Initialize calls initialize; it only succeeds on an uninitialized proxy
func (s *Session) Initialize(ctx context.Context, from, user, registry common.Address) (*ledger.Receipt, error) {
	return s.logic.Transact(ctx, from, "initialize", user, registry)
}

// SetRevoke toggles delegated access; only the user may call it
func (s *Session) SetRevoke(ctx context.Context, from common.Address, revoke bool) (*ledger.Receipt, error) {
	return s.logic.Transact(ctx, from, "setRevoke", revoke)
}

// Proxy forwards a call and reports whether the target succeeded
func (s *Session) Proxy(ctx context.Context, from common.Address, call chain.Call) (bool, *ledger.Receipt, error) {
	receipt, err := s.logic.Transact(ctx, from, "proxy", call.Target, uint8(call.HowToCall), nonNil(call.Data))
	if err != nil {
		return false, nil, err
	}
	out, err := s.logic.Unpack("proxy", receipt.Return)
	if err != nil {
		return false, receipt, err
	}
	return out[0].(bool), receipt, nil
}

// ProxyAssert forwards a call and fails if the target fails
func (s *Session) ProxyAssert(ctx context.Context, from common.Address, call chain.Call) (*ledger.Receipt, error) {
	return s.logic.Transact(ctx, from, "proxyAssert", call.Target, uint8(call.HowToCall), nonNil(call.Data))
}

// TransferOwnership hands the proxy to newUser and moves the registry entry
func (s *Session) TransferOwnership(ctx context.Context, from, newUser common.Address) (*ledger.Receipt, error) {
	return s.logic.Transact(ctx, from, "transferOwnership", newUser)
}

// ReceiveApproval pulls value of token from holder into the proxy
func (s *Session) ReceiveApproval(ctx context.Context, from, holder common.Address, value *big.Int, token common.Address, extraData []byte) (*ledger.Receipt, error) {
	return s.logic.Transact(ctx, from, "receiveApproval", holder, value, token, nonNil(extraData))
}

// Implementation returns the logic contract the proxy delegates to
func (s *Session) Implementation(ctx context.Context) (common.Address, error) {
	out, err := s.wrapper.Call(ctx, common.Address{}, "implementation")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// ProxyOwner returns the upgradeability owner
func (s *Session) ProxyOwner(ctx context.Context) (common.Address, error) {
	out, err := s.wrapper.Call(ctx, common.Address{}, "proxyOwner")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// ProxyType returns the proxy type tag
func (s *Session) ProxyType(ctx context.Context) (*big.Int, error) {
	out, err := s.wrapper.Call(ctx, common.Address{}, "proxyType")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// UpgradeTo repoints the proxy at a new implementation
func (s *Session) UpgradeTo(ctx context.Context, from, implementation common.Address) (*ledger.Receipt, error) {
	return s.wrapper.Transact(ctx, from, "upgradeTo", implementation)
}

// UpgradeToAndCall repoints the proxy and delegate-calls data against the new implementation
func (s *Session) UpgradeToAndCall(ctx context.Context, from, implementation common.Address, data []byte) (*ledger.Receipt, error) {
	return s.wrapper.Transact(ctx, from, "upgradeToAndCall", implementation, nonNil(data))
}

// TransferProxyOwnership moves upgradeability ownership
func (s *Session) TransferProxyOwnership(ctx context.Context, from, newOwner common.Address) (*ledger.Receipt, error) {
	return s.wrapper.Transact(ctx, from, "transferProxyOwnership", newOwner)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
