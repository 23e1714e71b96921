package wyvern

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Action types accepted by ExecuteAction
const (
	ActionRegisterProxy            = "registerProxy"
	ActionRegisterProxyFor         = "registerProxyFor"
	ActionRegisterProxyOverride    = "registerProxyOverride"
	ActionSetRevoke                = "setRevoke"
	ActionApproveOrder             = "approveOrder"
	ActionApproveOrderHash         = "approveOrderHash"
	ActionSetOrderFill             = "setOrderFill"
	ActionCancelOrder              = "cancelOrder"
	ActionStartGrantAuthentication = "startGrantAuthentication"
	ActionEndGrantAuthentication   = "endGrantAuthentication"
	ActionRevokeAuthentication     = "revokeAuthentication"
)

const (
	// DefaultActionLifetime is how long APIClient actions stay valid
	DefaultActionLifetime = 5 * time.Minute
	// MaxActionLifetime bounds how far ahead an action may expire
	MaxActionLifetime = time.Hour
)

// Action is a state-changing request an account signs. The signer is the
// account the action runs as. Nonce tells apart otherwise identical actions.
type Action struct {
	Type     string `json:"type"`
	Exchange string `json:"exchange"`
	Expiry   uint64 `json:"expiry"`
	Nonce    string `json:"nonce"`

	User                      string     `json:"user,omitempty"`
	Contract                  string     `json:"contract,omitempty"`
	Hash                      string     `json:"hash,omitempty"`
	Fill                      string     `json:"fill,omitempty"`
	Revoke                    bool       `json:"revoke,omitempty"`
	Order                     *OrderJSON `json:"order,omitempty"`
	OrderbookInclusionDesired bool       `json:"orderbookInclusionDesired,omitempty"`
}

// ActionRequest carries an action exactly as it was signed
type ActionRequest struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// ActionResult is the outcome of an executed action
type ActionResult struct {
	Type        string             `json:"type"`
	Signer      string             `json:"signer"`
	Proxy       string             `json:"proxy,omitempty"`
	Transaction *TransactionResult `json:"transaction,omitempty"`
}

// ActionDigest is the hash of an action payload. Signatures cover it directly
// or under the personal message prefix.
func ActionDigest(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}

// SignAction encodes action and signs it with key under the personal message prefix
func SignAction(key *ecdsa.PrivateKey, personalPrefix string, action Action) (ActionRequest, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return ActionRequest{}, fmt.Errorf("failed to encode action: %w", err)
	}
	digest := chain.PersonalMessageHash(personalPrefix, ActionDigest(payload))
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return ActionRequest{}, fmt.Errorf("failed to sign action: %w", err)
	}
	blob, err := chain.EncodeSignature(sig, chain.SignaturePersonal)
	if err != nil {
		return ActionRequest{}, err
	}
	return ActionRequest{Payload: string(payload), Signature: hexutil.Encode(blob)}, nil
}

// actionGuard remembers executed actions until they expire
type actionGuard struct {
	mu   sync.Mutex
	seen map[common.Hash]uint64
}

func newActionGuard() *actionGuard {
	return &actionGuard{seen: make(map[common.Hash]uint64)}
}

func (g *actionGuard) claim(digest common.Hash, expiry, now uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for d, exp := range g.seen {
		if exp <= now {
			delete(g.seen, d)
		}
	}
	if _, ok := g.seen[digest]; ok {
		return false
	}
	g.seen[digest] = expiry
	return true
}

func (g *actionGuard) release(digest common.Hash) {
	g.mu.Lock()
	delete(g.seen, digest)
	g.mu.Unlock()
}

// ExecuteAction verifies a signed action and runs it as its signer. An action
// runs at most once; one that fails may be submitted again.
func (c *Client) ExecuteAction(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	action, signer, digest, err := c.verifyAction(req)
	if err != nil {
		return nil, err
	}
	if !c.actions.claim(digest, action.Expiry, c.ledger.Now()) {
		return nil, ErrActionReplayed
	}

	result, err := c.dispatchAction(ctx, signer, action)
	if err != nil {
		c.actions.release(digest)
		c.logger.Debug("action failed", "type", action.Type, "signer", signer.Hex(), "error", err)
		return nil, err
	}
	c.logger.Info("action executed", "type", action.Type, "signer", signer.Hex())
	return result, nil
}

func (c *Client) verifyAction(req ActionRequest) (*Action, common.Address, common.Hash, error) {
	if req.Payload == "" {
		return nil, common.Address{}, common.Hash{}, invalidParam("payload is required")
	}
	payload := []byte(req.Payload)
	var action Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return nil, common.Address{}, common.Hash{}, invalidParam("payload must be a JSON action: %v", err)
	}

	blob, err := ParseBytes("signature", req.Signature)
	if err != nil {
		return nil, common.Address{}, common.Hash{}, err
	}
	sig, err := chain.DecodeSignature(blob)
	if err != nil {
		return nil, common.Address{}, common.Hash{}, fmt.Errorf("%w: %v", ErrActionSignature, err)
	}
	digest := ActionDigest(payload)
	signer, err := sig.Recover(sig.Digest(digest, c.config.PersonalSignPrefix))
	if err != nil {
		return nil, common.Address{}, common.Hash{}, fmt.Errorf("%w: %v", ErrActionSignature, err)
	}

	target, err := ParseAddress("exchange", action.Exchange)
	if err != nil {
		return nil, common.Address{}, common.Hash{}, err
	}
	if target != c.exchange.Address() {
		return nil, common.Address{}, common.Hash{}, fmt.Errorf("%w: signed for %s", ErrActionDomain, target.Hex())
	}

	now := c.ledger.Now()
	if action.Expiry <= now {
		return nil, common.Address{}, common.Hash{}, ErrActionExpired
	}
	if action.Expiry > now+uint64(MaxActionLifetime/time.Second) {
		return nil, common.Address{}, common.Hash{}, invalidParam("expiry must be within %s", MaxActionLifetime)
	}
	return &action, signer, digest, nil
}

func (c *Client) dispatchAction(ctx context.Context, signer common.Address, action *Action) (*ActionResult, error) {
	result := &ActionResult{Type: action.Type, Signer: signer.Hex()}
	var err error

	switch action.Type {
	case ActionRegisterProxy, ActionRegisterProxyFor, ActionRegisterProxyOverride:
		var addr common.Address
		addr, err = c.registerByAction(ctx, signer, action)
		if err == nil {
			result.Proxy = addr.Hex()
		}
	case ActionSetRevoke:
		result.Transaction, err = c.SetRevoke(ctx, signer, action.Revoke)
	case ActionApproveOrder:
		var order *chain.Order
		if order, err = actionOrder(action); err == nil {
			result.Transaction, err = c.transact("approveOrder_", func() (*ledger.Receipt, error) {
				return c.exchange.ApproveOrder(ctx, signer, order, action.OrderbookInclusionDesired)
			})
		}
	case ActionApproveOrderHash:
		var hash common.Hash
		if hash, err = ParseHash("hash", action.Hash); err == nil {
			result.Transaction, err = c.ApproveOrderHash(ctx, signer, hash)
		}
	case ActionSetOrderFill:
		result.Transaction, err = c.setFillByAction(ctx, signer, action)
	case ActionCancelOrder:
		var order *chain.Order
		if order, err = actionOrder(action); err == nil {
			if order.Maker != signer {
				return nil, exchange.ErrNotMaker
			}
			result.Transaction, err = c.CancelOrder(ctx, order)
		}
	case ActionStartGrantAuthentication, ActionEndGrantAuthentication, ActionRevokeAuthentication:
		result.Transaction, err = c.grantByAction(ctx, signer, action)
	default:
		err = invalidParam("unknown action type %q", action.Type)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) registerByAction(ctx context.Context, signer common.Address, action *Action) (common.Address, error) {
	switch action.Type {
	case ActionRegisterProxyFor:
		user, err := ParseAddress("user", action.User)
		if err != nil {
			return common.Address{}, err
		}
		return c.RegisterProxyFor(ctx, signer, user)
	case ActionRegisterProxyOverride:
		return c.RegisterProxyOverride(ctx, signer)
	default:
		return c.RegisterProxy(ctx, signer)
	}
}

func (c *Client) setFillByAction(ctx context.Context, signer common.Address, action *Action) (*TransactionResult, error) {
	hash, err := ParseHash("hash", action.Hash)
	if err != nil {
		return nil, err
	}
	fill, err := ParseUint256("fill", action.Fill)
	if err != nil {
		return nil, err
	}
	return c.SetOrderFill(ctx, signer, hash, fill)
}

func (c *Client) grantByAction(ctx context.Context, signer common.Address, action *Action) (*TransactionResult, error) {
	contract, err := ParseAddress("contract", action.Contract)
	if err != nil {
		return nil, err
	}
	switch action.Type {
	case ActionStartGrantAuthentication:
		return c.StartGrantAuthentication(ctx, signer, contract)
	case ActionEndGrantAuthentication:
		return c.EndGrantAuthentication(ctx, signer, contract)
	default:
		return c.RevokeAuthentication(ctx, signer, contract)
	}
}

func actionOrder(action *Action) (*chain.Order, error) {
	if action.Order == nil {
		return nil, invalidParam("order is required for %s", action.Type)
	}
	return OrderFromJSON(*action.Order)
}
