package proxy

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAlreadyInitialized is returned on a second initialize
	ErrAlreadyInitialized = errors.New("authenticated proxy already initialized")

	// ErrNotUser is returned when a user-only operation comes from someone else
	ErrNotUser = errors.New("caller is not the proxy user")

	// ErrUnauthorized is returned when neither the user nor a live authenticated contract calls
	ErrUnauthorized = errors.New("proxy can only be called by its user, or by an authenticated contract while access is not revoked")

	// ErrInvalidHowToCall is returned for an unknown call mode
	ErrInvalidHowToCall = errors.New("invalid call mode")

	// ErrProxyAssertionFailed is returned by proxyAssert when the forwarded call fails
	ErrProxyAssertionFailed = errors.New("proxy assertion failed")

	// ErrZeroAddress is returned when ownership would move to the zero address
	ErrZeroAddress = errors.New("new owner is the zero address")

	// ErrTokenTransferFailed is returned when a token refuses to pull approved funds
	ErrTokenTransferFailed = errors.New("token transfer failed")
)

// Authenticated proxy storage slots
var (
	slotInitialized = ledger.Slot(0)
	slotUser        = ledger.Slot(1)
	slotRegistry    = ledger.Slot(2)
	slotRevoked     = ledger.Slot(3)
)

// Event names
const (
	EventRevoked          = "Revoked"
	EventUserTransferred  = "UserTransferred"
	EventReceivedTokens   = "ReceivedTokens"
	EventUpgraded         = "Upgraded"
	EventOwnerTransferred = "ProxyOwnershipTransferred"
)

// RevokedEvent is emitted when the user toggles delegated access
type RevokedEvent struct {
	Revoked bool `json:"revoked"`
}

// UserTransferredEvent is emitted when the proxy changes hands
type UserTransferredEvent struct {
	PreviousUser common.Address `json:"previous_user"`
	NewUser      common.Address `json:"new_user"`
}

// ReceivedTokensEvent is emitted when approved tokens are pulled into the proxy
type ReceivedTokensEvent struct {
	From      common.Address `json:"from"`
	Value     *big.Int       `json:"value"`
	Token     common.Address `json:"token"`
	ExtraData []byte         `json:"extra_data"`
}

// AuthenticatedProxy is the logic every user proxy delegates to. It keeps no
// state of its own; all reads and writes land in the calling wrapper's storage.
type AuthenticatedProxy struct{}

// NewAuthenticatedProxy returns the proxy implementation contract
func NewAuthenticatedProxy() *AuthenticatedProxy {
	return &AuthenticatedProxy{}
}

// Call dispatches proxy methods
func (p *AuthenticatedProxy) Call(env *ledger.Env, input []byte) ([]byte, error) {
	method, args, err := ledger.Dispatch(&chain.AuthenticatedProxyABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "initialize":
		return nil, p.initialize(env, args[0].(common.Address), args[1].(common.Address))
	case "user":
		return method.Outputs.Pack(env.LoadAddress(slotUser))
	case "registry":
		return method.Outputs.Pack(env.LoadAddress(slotRegistry))
	case "revoked":
		return method.Outputs.Pack(env.LoadBool(slotRevoked))
	case "setRevoke":
		return nil, p.setRevoke(env, args[0].(bool))
	case "proxy":
		ok, err := p.proxy(env, args[0].(common.Address), chain.HowToCall(args[1].(uint8)), args[2].([]byte))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(ok)
	case "proxyAssert":
		ok, err := p.proxy(env, args[0].(common.Address), chain.HowToCall(args[1].(uint8)), args[2].([]byte))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrProxyAssertionFailed
		}
		return nil, nil
	case "transferOwnership":
		return nil, p.transferOwnership(env, args[0].(common.Address))
	case "receiveApproval":
		return nil, p.receiveApproval(env, args[0].(common.Address), args[1].(*big.Int), args[2].(common.Address), args[3].([]byte))
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownSelector, method.Name)
}

func (p *AuthenticatedProxy) initialize(env *ledger.Env, user, registry common.Address) error {
	if env.LoadBool(slotInitialized) {
		return ErrAlreadyInitialized
	}
	env.StoreBool(slotInitialized, true)
	env.StoreAddress(slotUser, user)
	env.StoreAddress(slotRegistry, registry)
	return nil
}

func (p *AuthenticatedProxy) setRevoke(env *ledger.Env, revoke bool) error {
	if env.Caller != env.LoadAddress(slotUser) {
		return ErrNotUser
	}
	env.StoreBool(slotRevoked, revoke)
	env.Emit(EventRevoked, RevokedEvent{Revoked: revoke})
	return nil
}

// proxy forwards a call. It fails only on authorization; a failing target
// reports false with its effects rolled back.
func (p *AuthenticatedProxy) proxy(env *ledger.Env, dest common.Address, howToCall chain.HowToCall, data []byte) (bool, error) {
	if env.Caller != env.LoadAddress(slotUser) {
		if env.LoadBool(slotRevoked) {
			return false, ErrUnauthorized
		}
		if !isAuthenticated(env, env.LoadAddress(slotRegistry), env.Caller) {
			return false, ErrUnauthorized
		}
	}

	var callErr error
	switch howToCall {
	case chain.HowToCallCall:
		_, callErr = env.Call(dest, data)
	case chain.HowToCallDelegateCall:
		_, callErr = env.DelegateCall(dest, data)
	default:
		return false, fmt.Errorf("%w: %d", ErrInvalidHowToCall, howToCall)
	}
	return callErr == nil, nil
}

func (p *AuthenticatedProxy) transferOwnership(env *ledger.Env, newUser common.Address) error {
	user := env.LoadAddress(slotUser)
	if env.Caller != user {
		return ErrNotUser
	}
	if newUser == (common.Address{}) {
		return ErrZeroAddress
	}

	input, err := chain.RegistryABI.Pack("transferAccessTo", user, newUser)
	if err != nil {
		return fmt.Errorf("failed to pack transferAccessTo: %w", err)
	}
	if _, err := env.Call(env.LoadAddress(slotRegistry), input); err != nil {
		return err
	}

	env.StoreAddress(slotUser, newUser)
	env.Emit(EventUserTransferred, UserTransferredEvent{PreviousUser: user, NewUser: newUser})
	return nil
}

func (p *AuthenticatedProxy) receiveApproval(env *ledger.Env, from common.Address, value *big.Int, token common.Address, extraData []byte) error {
	input, err := chain.PackTransferFrom(from, env.Address, value)
	if err != nil {
		return err
	}
	ret, err := env.Call(token, input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransferFailed, err)
	}
	if len(ret) == 0 {
		return ErrTokenTransferFailed
	}
	out, err := chain.ERC20ABI.Unpack("transferFrom", ret)
	if err != nil || !out[0].(bool) {
		return ErrTokenTransferFailed
	}

	env.Emit(EventReceivedTokens, ReceivedTokensEvent{From: from, Value: value, Token: token, ExtraData: extraData})
	return nil
}

// isAuthenticated asks the registry whether addr holds a live grant
func isAuthenticated(env *ledger.Env, registry, addr common.Address) bool {
	input, err := chain.RegistryABI.Pack("contracts", addr)
	if err != nil {
		return false
	}
	ret, err := env.StaticCall(registry, input)
	if err != nil || len(ret) == 0 {
		return false
	}
	out, err := chain.RegistryABI.Unpack("contracts", ret)
	if err != nil {
		return false
	}
	return out[0].(bool)
}
