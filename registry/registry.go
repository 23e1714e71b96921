package registry

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/HappyFeet07/WyvernV3Fork/proxy"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultDelay is how long a contract waits between starting and ending a grant
const DefaultDelay = 14 * 24 * time.Hour

var (
	// ErrNotOwner is returned when an owner-only operation comes from someone else
	ErrNotOwner = errors.New("caller is not the registry owner")

	// ErrAlreadyInitialized is returned when the initial authentication was already granted
	ErrAlreadyInitialized = errors.New("initial address already set")

	// ErrInvalidGrantState is returned when a grant transition does not apply
	ErrInvalidGrantState = errors.New("invalid grant state")

	// ErrAlreadyHasProxy is returned when registering for a user that has a proxy
	ErrAlreadyHasProxy = errors.New("user already has a proxy")

	// ErrUserAlreadyHasProxy is returned when a proxy transfer targets a user with a proxy
	ErrUserAlreadyHasProxy = errors.New("proxy transfer has existing proxy as destination")

	// ErrProxyCallerMismatch is returned when transferAccessTo is not called by the proxy itself
	ErrProxyCallerMismatch = errors.New("proxy transfer can only be called by the proxy")

	// ErrZeroAddress is returned when ownership would move to the zero address
	ErrZeroAddress = errors.New("new owner is the zero address")
)

// GrantState is where a contract stands in the authentication lifecycle
type GrantState uint8

const (
	GrantUnset GrantState = iota
	GrantPending
	GrantGranted
	GrantRevoked
)

func (s GrantState) String() string {
	switch s {
	case GrantUnset:
		return "unset"
	case GrantPending:
		return "pending"
	case GrantGranted:
		return "granted"
	case GrantRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("GrantState(%d)", uint8(s))
	}
}

// Storage layout
var (
	slotOwner             = ledger.Slot(0)
	slotImplementation    = ledger.Slot(1)
	slotProxies           = ledger.Slot(2)
	slotGrantState        = ledger.Slot(3)
	slotPendingSince      = ledger.Slot(4)
	slotInitialAddressSet = ledger.Slot(5)
)

// Event names
const (
	EventProxyRegistered       = "ProxyRegistered"
	EventAccessTransferred     = "AccessTransferred"
	EventGrantStarted          = "GrantStarted"
	EventGrantEnded            = "GrantEnded"
	EventAuthenticationRevoked = "AuthenticationRevoked"
	EventOwnershipTransferred  = "OwnershipTransferred"
)

// ProxyRegisteredEvent is emitted when a user gets a new proxy
type ProxyRegisteredEvent struct {
	User  common.Address `json:"user"`
	Proxy common.Address `json:"proxy"`
}

// AccessTransferredEvent is emitted when a proxy moves between users
type AccessTransferredEvent struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Proxy common.Address `json:"proxy"`
}

// GrantEvent is emitted on every grant state change
type GrantEvent struct {
	Contract common.Address `json:"contract"`
	State    string         `json:"state"`
	Since    uint64         `json:"since,omitempty"`
}

// OwnershipTransferredEvent is emitted when registry ownership moves
type OwnershipTransferredEvent struct {
	PreviousOwner common.Address `json:"previous_owner"`
	NewOwner      common.Address `json:"new_owner"`
}

// Registry is the proxy directory and the authority over which contracts may
// drive user proxies.
type Registry struct {
	delay uint64
}

// New creates a registry whose grants mature after delay
func New(delay time.Duration) *Registry {
	if delay < 0 {
		delay = 0
	}
	return &Registry{delay: uint64(delay / time.Second)}
}

// Construct makes the deployer the owner and deploys the proxy implementation
func (r *Registry) Construct(env *ledger.Env) error {
	env.StoreAddress(slotOwner, env.Caller)
	impl, err := env.Create(proxy.NewAuthenticatedProxy())
	if err != nil {
		return fmt.Errorf("deploy proxy implementation: %w", err)
	}
	env.StoreAddress(slotImplementation, impl)
	return nil
}

// Call dispatches registry methods
func (r *Registry) Call(env *ledger.Env, input []byte) ([]byte, error) {
	method, args, err := ledger.Dispatch(&chain.RegistryABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "registerProxy", "registerProxyFor", "registerProxyOverride":
		var addr common.Address
		switch method.Name {
		case "registerProxy":
			addr, err = r.registerProxyFor(env, env.Caller)
		case "registerProxyFor":
			addr, err = r.registerProxyFor(env, args[0].(common.Address))
		default:
			addr, err = r.createProxy(env, env.Caller)
		}
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(addr)
	case "grantInitialAuthentication":
		return nil, r.grantInitialAuthentication(env, args[0].(common.Address))
	case "startGrantAuthentication":
		return nil, r.startGrantAuthentication(env, args[0].(common.Address))
	case "endGrantAuthentication":
		return nil, r.endGrantAuthentication(env, args[0].(common.Address))
	case "revokeAuthentication":
		return nil, r.revokeAuthentication(env, args[0].(common.Address))
	case "transferAccessTo":
		return nil, r.transferAccessTo(env, args[0].(common.Address), args[1].(common.Address))
	case "transferOwnership":
		return nil, r.transferOwnership(env, args[0].(common.Address))
	case "proxies":
		return method.Outputs.Pack(env.LoadAddress(proxySlot(args[0].(common.Address))))
	case "contracts":
		return method.Outputs.Pack(grantState(env, args[0].(common.Address)) == GrantGranted)
	case "grantState":
		addr := args[0].(common.Address)
		return method.Outputs.Pack(uint8(grantState(env, addr)), env.LoadBig(sinceSlot(addr)))
	case "delegateProxyImplementation":
		return method.Outputs.Pack(env.LoadAddress(slotImplementation))
	case "owner":
		return method.Outputs.Pack(env.LoadAddress(slotOwner))
	case "initialAddressSet":
		return method.Outputs.Pack(env.LoadBool(slotInitialAddressSet))
	case "DELAY_PERIOD":
		return method.Outputs.Pack(new(big.Int).SetUint64(r.delay))
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownSelector, method.Name)
}

func (r *Registry) registerProxyFor(env *ledger.Env, user common.Address) (common.Address, error) {
	if env.LoadAddress(proxySlot(user)) != (common.Address{}) {
		return common.Address{}, ErrAlreadyHasProxy
	}
	return r.createProxy(env, user)
}

// createProxy deploys a fresh proxy for user and points the directory at it.
// An existing entry is overwritten; the old proxy keeps working for its owner.
func (r *Registry) createProxy(env *ledger.Env, user common.Address) (common.Address, error) {
	initData, err := chain.AuthenticatedProxyABI.Pack("initialize", user, env.Address)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack initialize: %w", err)
	}
	addr, err := env.Create(proxy.NewOwnableDelegateProxy(user, env.LoadAddress(slotImplementation), initData))
	if err != nil {
		return common.Address{}, err
	}
	env.StoreAddress(proxySlot(user), addr)
	env.Emit(EventProxyRegistered, ProxyRegisteredEvent{User: user, Proxy: addr})
	return addr, nil
}

func (r *Registry) transferAccessTo(env *ledger.Env, from, to common.Address) error {
	current := env.LoadAddress(proxySlot(from))
	if env.Caller != current {
		return ErrProxyCallerMismatch
	}
	if env.LoadAddress(proxySlot(to)) != (common.Address{}) {
		return ErrUserAlreadyHasProxy
	}
	env.StoreAddress(proxySlot(from), common.Address{})
	env.StoreAddress(proxySlot(to), current)
	env.Emit(EventAccessTransferred, AccessTransferredEvent{From: from, To: to, Proxy: current})
	return nil
}

func (r *Registry) grantInitialAuthentication(env *ledger.Env, addr common.Address) error {
	if err := onlyOwner(env); err != nil {
		return err
	}
	if env.LoadBool(slotInitialAddressSet) {
		return ErrAlreadyInitialized
	}
	env.StoreBool(slotInitialAddressSet, true)
	setGrant(env, addr, GrantGranted, 0)
	return nil
}

func (r *Registry) startGrantAuthentication(env *ledger.Env, addr common.Address) error {
	if err := onlyOwner(env); err != nil {
		return err
	}
	state := grantState(env, addr)
	if state == GrantPending || state == GrantGranted {
		return fmt.Errorf("%w: cannot start grant for %s contract", ErrInvalidGrantState, state)
	}
	setGrant(env, addr, GrantPending, env.Now())
	return nil
}

func (r *Registry) endGrantAuthentication(env *ledger.Env, addr common.Address) error {
	if err := onlyOwner(env); err != nil {
		return err
	}
	state := grantState(env, addr)
	if state != GrantPending {
		return fmt.Errorf("%w: cannot end grant for %s contract", ErrInvalidGrantState, state)
	}
	since := env.LoadUint64(sinceSlot(addr))
	if env.Now() < since+r.delay {
		return fmt.Errorf("%w: grant matures at %d", ErrInvalidGrantState, since+r.delay)
	}
	setGrant(env, addr, GrantGranted, 0)
	return nil
}

func (r *Registry) revokeAuthentication(env *ledger.Env, addr common.Address) error {
	if err := onlyOwner(env); err != nil {
		return err
	}
	state := grantState(env, addr)
	if state != GrantGranted {
		return fmt.Errorf("%w: cannot revoke %s contract", ErrInvalidGrantState, state)
	}
	setGrant(env, addr, GrantRevoked, 0)
	return nil
}

func (r *Registry) transferOwnership(env *ledger.Env, newOwner common.Address) error {
	if err := onlyOwner(env); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	previous := env.LoadAddress(slotOwner)
	env.StoreAddress(slotOwner, newOwner)
	env.Emit(EventOwnershipTransferred, OwnershipTransferredEvent{PreviousOwner: previous, NewOwner: newOwner})
	return nil
}

func onlyOwner(env *ledger.Env) error {
	if env.Caller != env.LoadAddress(slotOwner) {
		return ErrNotOwner
	}
	return nil
}

func grantState(env *ledger.Env, addr common.Address) GrantState {
	return GrantState(env.LoadUint64(stateSlot(addr)))
}

func setGrant(env *ledger.Env, addr common.Address, state GrantState, since uint64) {
	env.StoreUint64(stateSlot(addr), uint64(state))
	env.StoreUint64(sinceSlot(addr), since)

	name := EventGrantEnded
	switch state {
	case GrantPending:
		name = EventGrantStarted
	case GrantRevoked:
		name = EventAuthenticationRevoked
	}
	env.Emit(name, GrantEvent{Contract: addr, State: state.String(), Since: since})
}

func proxySlot(user common.Address) common.Hash {
	return ledger.MapSlot(slotProxies, ledger.AddressKey(user))
}

func stateSlot(addr common.Address) common.Hash {
	return ledger.MapSlot(slotGrantState, ledger.AddressKey(addr))
}

func sinceSlot(addr common.Address) common.Hash {
	return ledger.MapSlot(slotPendingSince, ledger.AddressKey(addr))
}
