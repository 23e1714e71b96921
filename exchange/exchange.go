package exchange

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrSelfMatch                   = errors.New("self-matching orders is prohibited")
	ErrInvalidOrderParameters      = errors.New("invalid order parameters")
	ErrOrderFilled                 = errors.New("order is already completely filled")
	ErrOrderUnauthorized           = errors.New("order failed authorization")
	ErrPredicateRejected           = errors.New("static call failed")
	ErrFillExceedsMaximum          = errors.New("new fill exceeds maximum fill")
	ErrRegistryNotAllowed          = errors.New("order specified registry is not allowed")
	ErrCallTargetMissing           = errors.New("call target does not exist")
	ErrProxyNotFound               = errors.New("delegate proxy does not exist for maker")
	ErrProxyImplementationMismatch = errors.New("incorrect delegate proxy implementation for maker")
	ErrCallFailed                  = errors.New("call failed")
	ErrAlreadyApproved             = errors.New("order has already been approved")
	ErrNotMaker                    = errors.New("sender is not the maker of the order and thus not authorized to approve it")
	ErrFillUnchanged               = errors.New("fill is already set to the desired value")
	ErrInvalidSignatures           = errors.New("invalid signatures encoding")
)

// Event names
const (
	EventOrderApproved    = "OrderApproved"
	EventOrderFillChanged = "OrderFillChanged"
	EventOrdersMatched    = "OrdersMatched"
)

// OrderApprovedEvent is emitted when a maker pre-approves an order. Hash-only
// approvals leave the order fields empty.
type OrderApprovedEvent struct {
	Hash                      common.Hash    `json:"hash"`
	Registry                  common.Address `json:"registry"`
	Maker                     common.Address `json:"maker"`
	StaticTarget              common.Address `json:"static_target"`
	StaticSelector            hexutil.Bytes  `json:"static_selector,omitempty"`
	StaticExtradata           hexutil.Bytes  `json:"static_extradata,omitempty"`
	MaximumFill               *big.Int       `json:"maximum_fill,omitempty"`
	ListingTime               *big.Int       `json:"listing_time,omitempty"`
	ExpirationTime            *big.Int       `json:"expiration_time,omitempty"`
	Salt                      *big.Int       `json:"salt,omitempty"`
	OrderbookInclusionDesired bool           `json:"orderbook_inclusion_desired"`
}

// OrderFillChangedEvent is emitted when an account rewrites its fill record
type OrderFillChangedEvent struct {
	Hash    common.Hash    `json:"hash"`
	Maker   common.Address `json:"maker"`
	NewFill *big.Int       `json:"new_fill"`
}

// OrdersMatchedEvent is emitted once per settled match
type OrdersMatchedEvent struct {
	FirstHash     common.Hash    `json:"first_hash"`
	SecondHash    common.Hash    `json:"second_hash"`
	FirstMaker    common.Address `json:"first_maker"`
	SecondMaker   common.Address `json:"second_maker"`
	NewFirstFill  *big.Int       `json:"new_first_fill"`
	NewSecondFill *big.Int       `json:"new_second_fill"`
	Metadata      common.Hash    `json:"metadata"`
}

// Storage layout
var (
	slotRegistries = ledger.Slot(0)
	slotFills      = ledger.Slot(1)
	slotApproved   = ledger.Slot(2)
)

// Exchange settles pairs of orders through the makers' proxies
type Exchange struct {
	chainID            *big.Int
	registries         []common.Address
	personalSignPrefix string
}

// New creates an exchange for chainID that accepts proxies from registries.
// An empty prefix selects chain.DefaultPersonalSignPrefix.
func New(chainID *big.Int, registries []common.Address, personalSignPrefix string) *Exchange {
	if personalSignPrefix == "" {
		personalSignPrefix = chain.DefaultPersonalSignPrefix
	}
	return &Exchange{
		chainID:            new(big.Int).Set(chainID),
		registries:         append([]common.Address(nil), registries...),
		personalSignPrefix: personalSignPrefix,
	}
}

// Construct records the registry allow-list
func (x *Exchange) Construct(env *ledger.Env) error {
	for _, r := range x.registries {
		env.StoreBool(registrySlot(r), true)
	}
	return nil
}

// Call dispatches exchange methods
func (x *Exchange) Call(env *ledger.Env, input []byte) ([]byte, error) {
	method, args, err := ledger.Dispatch(&chain.ExchangeABI, input)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "hashOrder_":
		return method.Outputs.Pack(orderFromArgs(args).Hash())
	case "hashToSign_":
		return method.Outputs.Pack(chain.HashToSign(x.domainSeparator(env), args[0].([32]byte)))
	case "validateOrderParameters_":
		return method.Outputs.Pack(x.validateOrderParameters(env, orderFromArgs(args)))
	case "validateOrderAuthorization_":
		return method.Outputs.Pack(x.validateOrderAuthorization(env, args[0].([32]byte), args[1].(common.Address), args[2].([]byte)))
	case "approveOrderHash_":
		return nil, x.approveOrderHash(env, args[0].([32]byte))
	case "approveOrder_":
		return nil, x.approveOrder(env, orderFromArgs(args), args[9].(bool))
	case "setOrderFill_":
		return nil, x.setOrderFill(env, args[0].([32]byte), args[1].(*big.Int))
	case "atomicMatch_":
		m, err := matchFromArgs(args)
		if err != nil {
			return nil, err
		}
		return nil, x.atomicMatch(env, m)
	case "fills":
		return method.Outputs.Pack(env.LoadBig(fillSlot(args[0].(common.Address), args[1].([32]byte))))
	case "approved":
		return method.Outputs.Pack(env.LoadBool(approvedSlot(args[0].(common.Address), args[1].([32]byte))))
	case "registries":
		return method.Outputs.Pack(env.LoadBool(registrySlot(args[0].(common.Address))))
	case "name":
		return method.Outputs.Pack(chain.EIP712DomainName)
	case "version":
		return method.Outputs.Pack(chain.EIP712DomainVersion)
	case "chainId":
		return method.Outputs.Pack(new(big.Int).Set(x.chainID))
	case "DOMAIN_SEPARATOR":
		return method.Outputs.Pack(x.domainSeparator(env))
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownSelector, method.Name)
}

func (x *Exchange) domainSeparator(env *ledger.Env) common.Hash {
	return chain.NewEIP712Domain(x.chainID, env.Address).Hash()
}

func (x *Exchange) validateOrderParameters(env *ledger.Env, order *chain.Order) bool {
	if !env.HasCode(order.StaticTarget) {
		return false
	}
	now := new(big.Int).SetUint64(env.Now())
	if order.ListingTime.Cmp(now) > 0 {
		return false
	}
	if order.ExpirationTime.Sign() != 0 && order.ExpirationTime.Cmp(now) <= 0 {
		return false
	}
	return true
}

func (x *Exchange) validateOrderAuthorization(env *ledger.Env, hash common.Hash, maker common.Address, signature []byte) bool {
	// A nonzero fill means the order was authorized in an earlier match.
	if env.LoadBig(fillSlot(maker, hash)).Sign() > 0 {
		return true
	}
	if maker == env.Caller {
		return true
	}
	if env.LoadBool(approvedSlot(maker, hash)) {
		return true
	}

	hashToSign := chain.HashToSign(x.domainSeparator(env), hash)
	if env.HasCode(maker) {
		return contractSignatureValid(env, maker, hashToSign, signature)
	}
	if maker == (common.Address{}) {
		return false
	}
	sig, err := chain.DecodeSignature(signature)
	if err != nil {
		return false
	}
	signer, err := sig.Recover(sig.Digest(hashToSign, x.personalSignPrefix))
	if err != nil {
		return false
	}
	return signer == maker
}

func contractSignatureValid(env *ledger.Env, maker common.Address, hashToSign common.Hash, signature []byte) bool {
	input, err := chain.ERC1271ABI.Pack("isValidSignature", hashToSign, nonNil(signature))
	if err != nil {
		return false
	}
	ret, err := env.StaticCall(maker, input)
	if err != nil || len(ret) == 0 {
		return false
	}
	out, err := chain.ERC1271ABI.Unpack("isValidSignature", ret)
	if err != nil {
		return false
	}
	return out[0].([4]byte) == chain.ERC1271MagicValue
}

func (x *Exchange) approveOrderHash(env *ledger.Env, hash common.Hash) error {
	slot := approvedSlot(env.Caller, hash)
	if env.LoadBool(slot) {
		return ErrAlreadyApproved
	}
	env.StoreBool(slot, true)
	env.Emit(EventOrderApproved, OrderApprovedEvent{Hash: hash, Maker: env.Caller})
	return nil
}

func (x *Exchange) approveOrder(env *ledger.Env, order *chain.Order, orderbookInclusionDesired bool) error {
	if order.Maker != env.Caller {
		return ErrNotMaker
	}
	hash := order.Hash()
	slot := approvedSlot(env.Caller, hash)
	if env.LoadBool(slot) {
		return ErrAlreadyApproved
	}
	env.StoreBool(slot, true)
	env.Emit(EventOrderApproved, OrderApprovedEvent{
		Hash:                      hash,
		Registry:                  order.Registry,
		Maker:                     order.Maker,
		StaticTarget:              order.StaticTarget,
		StaticSelector:            order.StaticSelector[:],
		StaticExtradata:           order.StaticExtradata,
		MaximumFill:               order.MaximumFill,
		ListingTime:               order.ListingTime,
		ExpirationTime:            order.ExpirationTime,
		Salt:                      order.Salt,
		OrderbookInclusionDesired: orderbookInclusionDesired,
	})
	return nil
}

func (x *Exchange) setOrderFill(env *ledger.Env, hash common.Hash, fill *big.Int) error {
	slot := fillSlot(env.Caller, hash)
	if env.LoadBig(slot).Cmp(fill) == 0 {
		return ErrFillUnchanged
	}
	env.StoreBig(slot, fill)
	env.Emit(EventOrderFillChanged, OrderFillChangedEvent{Hash: hash, Maker: env.Caller, NewFill: fill})
	return nil
}

func (x *Exchange) atomicMatch(env *ledger.Env, m *Match) error {
	firstHash := m.First.Hash()
	secondHash := m.Second.Hash()
	if firstHash == secondHash {
		return ErrSelfMatch
	}

	if !x.validateOrderParameters(env, m.First) {
		return fmt.Errorf("first order: %w", ErrInvalidOrderParameters)
	}
	if !x.validateOrderParameters(env, m.Second) {
		return fmt.Errorf("second order: %w", ErrInvalidOrderParameters)
	}

	firstFillSlot := fillSlot(m.First.Maker, firstHash)
	secondFillSlot := fillSlot(m.Second.Maker, secondHash)
	previousFirstFill := env.LoadBig(firstFillSlot)
	previousSecondFill := env.LoadBig(secondFillSlot)
	if previousFirstFill.Cmp(m.First.MaximumFill) >= 0 {
		return fmt.Errorf("first order: %w", ErrOrderFilled)
	}
	if previousSecondFill.Cmp(m.Second.MaximumFill) >= 0 {
		return fmt.Errorf("second order: %w", ErrOrderFilled)
	}

	if !x.validateOrderAuthorization(env, firstHash, m.First.Maker, m.FirstSignature) {
		return fmt.Errorf("first order: %w", ErrOrderUnauthorized)
	}
	if !x.validateOrderAuthorization(env, secondHash, m.Second.Maker, m.SecondSignature) {
		return fmt.Errorf("second order: %w", ErrOrderUnauthorized)
	}

	firstFill, err := x.runPredicate(env, m.First, &m.FirstCall, m.Second, &m.SecondCall, previousFirstFill, previousSecondFill)
	if err != nil {
		return fmt.Errorf("first order: %w", err)
	}
	secondFill, err := x.runPredicate(env, m.Second, &m.SecondCall, m.First, &m.FirstCall, previousSecondFill, previousFirstFill)
	if err != nil {
		return fmt.Errorf("second order: %w", err)
	}

	// Fills are committed before any proxy call so a reentrant match sees them.
	if firstFill.Cmp(previousFirstFill) != 0 {
		env.StoreBig(firstFillSlot, firstFill)
	}
	if secondFill.Cmp(previousSecondFill) != 0 {
		env.StoreBig(secondFillSlot, secondFill)
	}

	if err := x.executeCall(env, m.First, m.FirstCall); err != nil {
		return fmt.Errorf("first call: %w", err)
	}
	if err := x.executeCall(env, m.Second, m.SecondCall); err != nil {
		return fmt.Errorf("second call: %w", err)
	}

	env.Emit(EventOrdersMatched, OrdersMatchedEvent{
		FirstHash:     firstHash,
		SecondHash:    secondHash,
		FirstMaker:    m.First.Maker,
		SecondMaker:   m.Second.Maker,
		NewFirstFill:  firstFill,
		NewSecondFill: secondFill,
		Metadata:      m.Metadata,
	})
	return nil
}

func (x *Exchange) runPredicate(env *ledger.Env, order *chain.Order, call *chain.Call, counter *chain.Order, counterCall *chain.Call, fill, counterFill *big.Int) (*big.Int, error) {
	args := chain.NewStaticArgs(order, call, counter, counterCall, env.Caller, fill, counterFill)
	input, err := chain.PackStaticCall(order.StaticSelector, args)
	if err != nil {
		return nil, err
	}
	ret, err := env.StaticCall(order.StaticTarget, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredicateRejected, err)
	}
	if len(ret) == 0 {
		return nil, ErrPredicateRejected
	}
	newFill, err := chain.UnpackFill(ret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredicateRejected, err)
	}
	if newFill.Cmp(order.MaximumFill) > 0 {
		return nil, ErrFillExceedsMaximum
	}
	return newFill, nil
}

func (x *Exchange) executeCall(env *ledger.Env, order *chain.Order, call chain.Call) error {
	if !env.LoadBool(registrySlot(order.Registry)) {
		return ErrRegistryNotAllowed
	}
	if !env.HasCode(call.Target) {
		return ErrCallTargetMissing
	}
	proxyAddr, err := viewAddress(env, order.Registry, &chain.RegistryABI, "proxies", order.Maker)
	if err != nil {
		return err
	}
	if proxyAddr == (common.Address{}) {
		return ErrProxyNotFound
	}
	impl, err := viewAddress(env, proxyAddr, &chain.DelegateProxyABI, "implementation")
	if err != nil {
		return err
	}
	want, err := viewAddress(env, order.Registry, &chain.RegistryABI, "delegateProxyImplementation")
	if err != nil {
		return err
	}
	if impl != want {
		return ErrProxyImplementationMismatch
	}

	input, err := chain.AuthenticatedProxyABI.Pack("proxy", call.Target, uint8(call.HowToCall), nonNil(call.Data))
	if err != nil {
		return fmt.Errorf("failed to pack proxy call: %w", err)
	}
	ret, err := env.Call(proxyAddr, input)
	if err != nil {
		return err
	}
	out, err := chain.AuthenticatedProxyABI.Unpack("proxy", ret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	if ok, _ := out[0].(bool); !ok {
		return ErrCallFailed
	}
	return nil
}

func viewAddress(env *ledger.Env, target common.Address, contractABI *abi.ABI, method string, args ...interface{}) (common.Address, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	ret, err := env.StaticCall(target, input)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s on %s: %w", method, target.Hex(), err)
	}
	if len(ret) == 0 {
		return common.Address{}, nil
	}
	out, err := contractABI.Unpack(method, ret)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out[0].(common.Address), nil
}

func registrySlot(registry common.Address) common.Hash {
	return ledger.MapSlot(slotRegistries, ledger.AddressKey(registry))
}

func fillSlot(maker common.Address, hash common.Hash) common.Hash {
	return ledger.MapSlot(ledger.MapSlot(slotFills, ledger.AddressKey(maker)), hash)
}

func approvedSlot(maker common.Address, hash common.Hash) common.Hash {
	return ledger.MapSlot(ledger.MapSlot(slotApproved, ledger.AddressKey(maker)), hash)
}
