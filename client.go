package wyvern

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/atomicizer"
	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/internal/events"
	"github.com/HappyFeet07/WyvernV3Fork/internal/metrics"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/HappyFeet07/WyvernV3Fork/proxy"
	"github.com/HappyFeet07/WyvernV3Fork/registry"
	"github.com/HappyFeet07/WyvernV3Fork/static"
	"github.com/ethereum/go-ethereum/common"
)

// Match outcomes recorded in metrics
const (
	MatchSettled      = "settled"
	MatchRejected     = "rejected"
	MatchUnauthorized = "unauthorized"
	MatchFilled       = "filled"
	MatchInvalid      = "invalid"
	MatchCallFailed   = "call_failed"
	MatchError        = "error"
)

// Client deploys the protocol on a ledger and drives it
type Client struct {
	config   ClientConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	ledger   *ledger.Ledger
	fanout   *events.Fanout
	journal  *events.Journal
	registry *registry.Session
	exchange *exchange.Session

	atomicizer common.Address
	static     common.Address
	selectors  map[string][4]byte
	actions    *actionGuard
	closed     atomic.Bool
}

// ClientConfig holds configuration for creating a Client
type ClientConfig struct {
	ChainID            ChainID
	PersonalSignPrefix string
	GrantDelay         time.Duration
	// Deployer owns the registry and deploys every contract
	Deployer common.Address
	Clock    ledger.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Journal, when set, receives every event and answers Events
	Journal *events.Journal
	Sinks   []events.Sink
	// Predicates are registered on the predicate host next to the built-ins
	Predicates map[string]static.Predicate
}

// NewClient creates a ledger, deploys registry, atomicizer, predicate host and
// exchange, and grants the exchange the registry's initial authentication.
func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	if !config.ChainID.IsSupported() {
		return nil, invalidParam("chain_id must be one of %v", SupportedChainIDs)
	}
	if config.Deployer == (common.Address{}) {
		return nil, invalidParam("deployer is required")
	}

	settings := DefaultChainSettings[config.ChainID]
	if config.PersonalSignPrefix == "" {
		config.PersonalSignPrefix = settings.PersonalSignPrefix
	}
	if config.GrantDelay == 0 {
		config.GrantDelay = settings.GrantDelay
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = ledger.SystemClock{}
	}

	l, err := ledger.New(config.Clock, ledger.WithLogger(config.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	fanout := events.NewFanout(config.Logger, config.Metrics, config.Sinks...)
	if config.Journal != nil {
		fanout.Add(config.Journal)
	}
	l.Subscribe(fanout.HandleReceipt)

	c := &Client{
		config:    config,
		logger:    config.Logger,
		metrics:   config.Metrics,
		ledger:    l,
		fanout:    fanout,
		journal:   config.Journal,
		selectors: make(map[string][4]byte),
		actions:   newActionGuard(),
	}
	if err := c.deploy(ctx); err != nil {
		fanout.Close()
		return nil, err
	}

	c.logger.Info("wyvern deployed",
		"chain_id", int64(config.ChainID),
		"ledger", l.ID().Hex(),
		"exchange", c.exchange.Address().Hex(),
		"registry", c.registry.Address().Hex(),
		"atomicizer", c.atomicizer.Hex(),
		"static", c.static.Hex(),
	)
	return c, nil
}

func (c *Client) deploy(ctx context.Context) error {
	var err error
	from := c.config.Deployer

	if c.registry, err = registry.Deploy(ctx, c.ledger, from, c.config.GrantDelay); err != nil {
		return fmt.Errorf("failed to deploy registry: %w", err)
	}
	if c.atomicizer, err = atomicizer.Deploy(ctx, c.ledger, from); err != nil {
		return fmt.Errorf("failed to deploy atomicizer: %w", err)
	}

	host := static.New(c.atomicizer)
	c.selectors["any"] = static.SelectorAny
	c.selectors["anyNoFill"] = static.SelectorAnyNoFill
	c.selectors["anyAddOne"] = static.SelectorAnyAddOne
	for name, p := range c.config.Predicates {
		c.selectors[name] = host.Register(name, p)
	}
	if c.static, err = static.Deploy(ctx, c.ledger, from, host); err != nil {
		return fmt.Errorf("failed to deploy predicate host: %w", err)
	}

	chainID := big.NewInt(int64(c.config.ChainID))
	registries := []common.Address{c.registry.Address()}
	if c.exchange, err = exchange.Deploy(ctx, c.ledger, from, chainID, registries, c.config.PersonalSignPrefix); err != nil {
		return fmt.Errorf("failed to deploy exchange: %w", err)
	}
	if _, err := c.registry.GrantInitialAuthentication(ctx, from, c.exchange.Address()); err != nil {
		return fmt.Errorf("failed to authenticate exchange: %w", err)
	}
	return nil
}

// Close closes the event sinks
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.fanout.Close()
}

// Ledger returns the ledger the protocol runs on
func (c *Client) Ledger() *ledger.Ledger {
	return c.ledger
}

// Exchange returns the exchange binding
func (c *Client) Exchange() *exchange.Session {
	return c.exchange
}

// Registry returns the registry binding
func (c *Client) Registry() *registry.Session {
	return c.registry
}

// Atomicizer returns the batch-call library address
func (c *Client) Atomicizer() common.Address {
	return c.atomicizer
}

// Static returns the predicate host address
func (c *Client) Static() common.Address {
	return c.static
}

// ChainID returns the chain id orders are signed for
func (c *Client) ChainID() ChainID {
	return c.config.ChainID
}

// Selector returns the selector of a predicate registered on the host
func (c *Client) Selector(name string) ([4]byte, bool) {
	sel, ok := c.selectors[name]
	return sel, ok
}

// Proxy returns a binding for a user proxy
func (c *Client) Proxy(addr common.Address) *proxy.Session {
	return proxy.NewSession(c.ledger, addr)
}

// NewOrderBuilder returns a builder that signs orders for this exchange
func (c *Client) NewOrderBuilder(key *ecdsa.PrivateKey) (*chain.OrderBuilder, error) {
	ob, err := chain.NewOrderBuilder(c.exchange.Address(), big.NewInt(int64(c.config.ChainID)), key)
	if err != nil {
		return nil, err
	}
	return ob.WithPersonalPrefix(c.config.PersonalSignPrefix), nil
}

// Info describes the deployment
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	name, err := c.exchange.Name(ctx)
	if err != nil {
		return nil, err
	}
	version, err := c.exchange.Version(ctx)
	if err != nil {
		return nil, err
	}
	domain, err := c.exchange.DomainSeparator(ctx)
	if err != nil {
		return nil, err
	}
	return &InfoResponse{
		Name:            name,
		Version:         version,
		ChainID:         fmt.Sprint(int64(c.config.ChainID)),
		Exchange:        c.exchange.Address().Hex(),
		Registry:        c.registry.Address().Hex(),
		Atomicizer:      c.atomicizer.Hex(),
		Static:          c.static.Hex(),
		DomainSeparator: domain.Hex(),
		PersonalPrefix:  c.config.PersonalSignPrefix,
		Time:            c.ledger.Now(),
	}, nil
}

// HashOrder returns the canonical order hash computed by the exchange
func (c *Client) HashOrder(ctx context.Context, order *chain.Order) (common.Hash, error) {
	return c.exchange.HashOrder(ctx, order)
}

// HashToSign returns the digest a maker signs for orderHash
func (c *Client) HashToSign(ctx context.Context, orderHash common.Hash) (common.Hash, error) {
	return c.exchange.HashToSign(ctx, orderHash)
}

// ValidateOrderParameters checks listing, expiry and predicate target
func (c *Client) ValidateOrderParameters(ctx context.Context, order *chain.Order) (bool, error) {
	return c.exchange.ValidateOrderParameters(ctx, order)
}

// ValidateOrderAuthorization reports whether sender could settle hash on maker's behalf
func (c *Client) ValidateOrderAuthorization(ctx context.Context, sender common.Address, hash common.Hash, maker common.Address, signature []byte) (bool, error) {
	return c.exchange.ValidateOrderAuthorization(ctx, sender, hash, maker, signature)
}

// Fill returns maker's fill record for hash
func (c *Client) Fill(ctx context.Context, maker common.Address, hash common.Hash) (*big.Int, error) {
	return c.exchange.Fills(ctx, maker, hash)
}

// Approved reports whether maker pre-approved hash
func (c *Client) Approved(ctx context.Context, maker common.Address, hash common.Hash) (bool, error) {
	return c.exchange.Approved(ctx, maker, hash)
}

// ApproveOrder pre-approves order on behalf of its maker
func (c *Client) ApproveOrder(ctx context.Context, order *chain.Order, orderbookInclusionDesired bool) (*TransactionResult, error) {
	return c.transact("approveOrder_", func() (*ledger.Receipt, error) {
		return c.exchange.ApproveOrder(ctx, order.Maker, order, orderbookInclusionDesired)
	})
}

// ApproveOrderHash pre-approves hash for from
func (c *Client) ApproveOrderHash(ctx context.Context, from common.Address, hash common.Hash) (*TransactionResult, error) {
	return c.transact("approveOrderHash_", func() (*ledger.Receipt, error) {
		return c.exchange.ApproveOrderHash(ctx, from, hash)
	})
}

// SetOrderFill rewrites from's fill record for hash
func (c *Client) SetOrderFill(ctx context.Context, from common.Address, hash common.Hash, fill *big.Int) (*TransactionResult, error) {
	if fill == nil || fill.Sign() < 0 {
		return nil, invalidParam("fill must be a non-negative integer")
	}
	return c.transact("setOrderFill_", func() (*ledger.Receipt, error) {
		return c.exchange.SetOrderFill(ctx, from, hash, fill)
	})
}

// CancelOrder fills order to its maximum so it can no longer match
func (c *Client) CancelOrder(ctx context.Context, order *chain.Order) (*TransactionResult, error) {
	if order.MaximumFill == nil || order.MaximumFill.Sign() == 0 {
		return nil, invalidParam("order maximumFill must be positive")
	}
	return c.SetOrderFill(ctx, order.Maker, order.Hash(), order.MaximumFill)
}

// AtomicMatch settles m with from as the matcher
func (c *Client) AtomicMatch(ctx context.Context, from common.Address, m *exchange.Match) (*TransactionResult, error) {
	if m == nil || m.First == nil || m.Second == nil {
		return nil, invalidParam("match needs two orders")
	}
	result, err := c.transact("atomicMatch_", func() (*ledger.Receipt, error) {
		return c.exchange.AtomicMatch(ctx, from, m)
	})

	outcome := matchOutcome(err)
	c.metrics.ObserveMatch(outcome)
	if err != nil {
		c.logger.Warn("match failed",
			"outcome", outcome,
			"matcher", from.Hex(),
			"first_maker", m.First.Maker.Hex(),
			"second_maker", m.Second.Maker.Hex(),
			"error", err,
		)
		return nil, err
	}

	c.logger.Info("orders matched",
		"tx_hash", result.TxHash,
		"matcher", from.Hex(),
		"first_hash", result.Matched.FirstHash,
		"second_hash", result.Matched.SecondHash,
	)
	return result, nil
}

// MatchBatch settles each match independently; one failure does not stop the rest
func (c *Client) MatchBatch(ctx context.Context, from common.Address, matches []*exchange.Match) ([]BatchMatchResult, error) {
	if len(matches) == 0 {
		return nil, invalidParam("matches list cannot be empty")
	}

	results := make([]BatchMatchResult, 0, len(matches))
	for i, m := range matches {
		result, err := c.AtomicMatch(ctx, from, m)
		if err != nil {
			results = append(results, BatchMatchResult{Index: i, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, BatchMatchResult{Index: i, Success: true, Result: result})
	}
	return results, nil
}

// RegisterProxy creates a proxy for user
func (c *Client) RegisterProxy(ctx context.Context, user common.Address) (common.Address, error) {
	start := time.Now()
	addr, err := c.registry.RegisterProxy(ctx, user)
	c.metrics.ObserveTransaction("registerProxy", err, time.Since(start))
	if err != nil {
		return common.Address{}, err
	}
	c.logger.Debug("proxy registered", "user", user.Hex(), "proxy", addr.Hex())
	return addr, nil
}

// RegisterProxyFor creates a proxy for user, paid for by from
func (c *Client) RegisterProxyFor(ctx context.Context, from, user common.Address) (common.Address, error) {
	start := time.Now()
	addr, err := c.registry.RegisterProxyFor(ctx, from, user)
	c.metrics.ObserveTransaction("registerProxyFor", err, time.Since(start))
	return addr, err
}

// RegisterProxyOverride replaces user's proxy with a fresh one
func (c *Client) RegisterProxyOverride(ctx context.Context, user common.Address) (common.Address, error) {
	start := time.Now()
	addr, err := c.registry.RegisterProxyOverride(ctx, user)
	c.metrics.ObserveTransaction("registerProxyOverride", err, time.Since(start))
	return addr, err
}

// SetRevoke toggles the revocation flag on user's proxy
func (c *Client) SetRevoke(ctx context.Context, user common.Address, revoke bool) (*TransactionResult, error) {
	addr, err := c.registry.Proxies(ctx, user)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, exchange.ErrProxyNotFound
	}
	return c.transact("setRevoke", func() (*ledger.Receipt, error) {
		return c.Proxy(addr).SetRevoke(ctx, user, revoke)
	})
}

// ProxyOf returns user's proxy, or the zero address when none is registered
func (c *Client) ProxyOf(ctx context.Context, user common.Address) (common.Address, error) {
	return c.registry.Proxies(ctx, user)
}

// StartGrantAuthentication opens a grant for contract; from must own the registry
func (c *Client) StartGrantAuthentication(ctx context.Context, from, contract common.Address) (*TransactionResult, error) {
	return c.transact("startGrantAuthentication", func() (*ledger.Receipt, error) {
		return c.registry.StartGrantAuthentication(ctx, from, contract)
	})
}

// EndGrantAuthentication completes a matured grant for contract
func (c *Client) EndGrantAuthentication(ctx context.Context, from, contract common.Address) (*TransactionResult, error) {
	return c.transact("endGrantAuthentication", func() (*ledger.Receipt, error) {
		return c.registry.EndGrantAuthentication(ctx, from, contract)
	})
}

// RevokeAuthentication withdraws contract's authority over proxies
func (c *Client) RevokeAuthentication(ctx context.Context, from, contract common.Address) (*TransactionResult, error) {
	return c.transact("revokeAuthentication", func() (*ledger.Receipt, error) {
		return c.registry.RevokeAuthentication(ctx, from, contract)
	})
}

// GrantState returns contract's authentication record
func (c *Client) GrantState(ctx context.Context, contract common.Address) (*GrantResponse, error) {
	grant, err := c.registry.GrantState(ctx, contract)
	if err != nil {
		return nil, err
	}
	authenticated, err := c.registry.IsAuthenticated(ctx, contract)
	if err != nil {
		return nil, err
	}
	return &GrantResponse{
		Contract:      contract.Hex(),
		State:         grant.State.String(),
		Since:         grant.Since,
		Authenticated: authenticated,
	}, nil
}

// Events returns journaled events, newest first
func (c *Client) Events(ctx context.Context, eventType string, limit int) ([]events.Envelope, error) {
	if c.journal == nil {
		return nil, ErrJournalDisabled
	}
	return c.journal.Query(ctx, eventType, limit)
}

func (c *Client) transact(method string, fn func() (*ledger.Receipt, error)) (*TransactionResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	start := time.Now()
	receipt, err := fn()
	elapsed := time.Since(start)
	c.metrics.ObserveTransaction(method, err, elapsed)
	if err != nil {
		c.logger.Debug("transaction reverted", "method", method, "error", err)
		return nil, err
	}
	c.logger.Debug("transaction committed",
		"method", method,
		"tx_hash", receipt.TxHash.Hex(),
		"events", len(receipt.Events),
		"latency", elapsed,
	)
	return transactionResult(receipt), nil
}

func transactionResult(r *ledger.Receipt) *TransactionResult {
	result := &TransactionResult{
		TxHash: r.TxHash.Hex(),
		From:   r.From.Hex(),
		To:     r.To.Hex(),
		Time:   r.Time,
		Events: make([]string, 0, len(r.Events)),
	}
	for _, ev := range r.Events {
		result.Events = append(result.Events, ev.Name)
		if matched, ok := ev.Data.(exchange.OrdersMatchedEvent); ok {
			result.Matched = &MatchedJSON{
				FirstHash:     matched.FirstHash.Hex(),
				SecondHash:    matched.SecondHash.Hex(),
				FirstMaker:    matched.FirstMaker.Hex(),
				SecondMaker:   matched.SecondMaker.Hex(),
				NewFirstFill:  bigString(matched.NewFirstFill),
				NewSecondFill: bigString(matched.NewSecondFill),
				Metadata:      matched.Metadata.Hex(),
			}
		}
	}
	return result
}

func matchOutcome(err error) string {
	switch {
	case err == nil:
		return MatchSettled
	case errors.Is(err, exchange.ErrPredicateRejected), errors.Is(err, exchange.ErrFillExceedsMaximum):
		return MatchRejected
	case errors.Is(err, exchange.ErrOrderUnauthorized), errors.Is(err, exchange.ErrSelfMatch):
		return MatchUnauthorized
	case errors.Is(err, exchange.ErrOrderFilled):
		return MatchFilled
	case errors.Is(err, exchange.ErrInvalidOrderParameters):
		return MatchInvalid
	case errors.Is(err, exchange.ErrCallFailed):
		return MatchCallFailed
	default:
		return MatchError
	}
}
