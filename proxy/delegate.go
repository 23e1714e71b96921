package proxy

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// ProxyTypeID identifies an upgradeable delegate proxy
const ProxyTypeID = 2

var (
	// ErrNotProxyOwner is returned when an upgradeability operation comes from someone else
	ErrNotProxyOwner = errors.New("caller is not the proxy owner")

	// ErrSameImplementation is returned when upgrading to the current implementation
	ErrSameImplementation = errors.New("proxy already uses this implementation")
)

// Wrapper slots are namespaced so they cannot collide with the implementation's
// sequential layout.
var (
	slotImplementation = ledger.NamedSlot("org.wyvernprotocol.proxy.implementation")
	slotProxyOwner     = ledger.NamedSlot("org.wyvernprotocol.proxy.owner")
)

// UpgradedEvent is emitted when the implementation changes
type UpgradedEvent struct {
	Implementation common.Address `json:"implementation"`
}

// OwnerTransferredEvent is emitted when upgradeability ownership moves
type OwnerTransferredEvent struct {
	PreviousOwner common.Address `json:"previous_owner"`
	NewOwner      common.Address `json:"new_owner"`
}

// OwnableDelegateProxy is the per-user proxy account. It answers its own
// upgradeability methods and delegates everything else to the implementation.
type OwnableDelegateProxy struct {
	owner          common.Address
	implementation common.Address
	initData       []byte
}

// NewOwnableDelegateProxy prepares a proxy owned by owner. initData is
// delegate-called against implementation during deployment.
func NewOwnableDelegateProxy(owner, implementation common.Address, initData []byte) *OwnableDelegateProxy {
	return &OwnableDelegateProxy{
		owner:          owner,
		implementation: implementation,
		initData:       initData,
	}
}

// Construct stores ownership and the implementation, then runs the init call
func (d *OwnableDelegateProxy) Construct(env *ledger.Env) error {
	env.StoreAddress(slotProxyOwner, d.owner)
	env.StoreAddress(slotImplementation, d.implementation)
	env.Emit(EventUpgraded, UpgradedEvent{Implementation: d.implementation})

	if len(d.initData) == 0 {
		return nil
	}
	if _, err := env.DelegateCall(d.implementation, d.initData); err != nil {
		return fmt.Errorf("initialize proxy: %w", err)
	}
	return nil
}

// Call dispatches upgradeability methods and forwards the rest
func (d *OwnableDelegateProxy) Call(env *ledger.Env, input []byte) ([]byte, error) {
	if len(input) >= 4 {
		if method, err := chain.DelegateProxyABI.MethodById(input[:4]); err == nil {
			args, err := method.Inputs.Unpack(input[4:])
			if err != nil {
				return nil, fmt.Errorf("decode %s arguments: %w", method.Name, err)
			}
			switch method.Name {
			case "implementation":
				return method.Outputs.Pack(env.LoadAddress(slotImplementation))
			case "proxyOwner":
				return method.Outputs.Pack(env.LoadAddress(slotProxyOwner))
			case "proxyType":
				return method.Outputs.Pack(big.NewInt(ProxyTypeID))
			case "upgradeTo":
				return nil, d.upgradeTo(env, args[0].(common.Address))
			case "upgradeToAndCall":
				if err := d.upgradeTo(env, args[0].(common.Address)); err != nil {
					return nil, err
				}
				_, err := env.DelegateCall(args[0].(common.Address), args[1].([]byte))
				return nil, err
			case "transferProxyOwnership":
				return nil, d.transferProxyOwnership(env, args[0].(common.Address))
			}
		}
	}
	return env.DelegateCall(env.LoadAddress(slotImplementation), input)
}

func (d *OwnableDelegateProxy) upgradeTo(env *ledger.Env, implementation common.Address) error {
	if env.Caller != env.LoadAddress(slotProxyOwner) {
		return ErrNotProxyOwner
	}
	if implementation == env.LoadAddress(slotImplementation) {
		return ErrSameImplementation
	}
	env.StoreAddress(slotImplementation, implementation)
	env.Emit(EventUpgraded, UpgradedEvent{Implementation: implementation})
	return nil
}

func (d *OwnableDelegateProxy) transferProxyOwnership(env *ledger.Env, newOwner common.Address) error {
	owner := env.LoadAddress(slotProxyOwner)
	if env.Caller != owner {
		return ErrNotProxyOwner
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	env.StoreAddress(slotProxyOwner, newOwner)
	env.Emit(EventOwnerTransferred, OwnerTransferredEvent{PreviousOwner: owner, NewOwner: newOwner})
	return nil
}
