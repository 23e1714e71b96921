package wyvern_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	wyvern "github.com/HappyFeet07/WyvernV3Fork"
	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/internal/events"
	"github.com/HappyFeet07/WyvernV3Fork/internal/logging"
	"github.com/HappyFeet07/WyvernV3Fork/internal/metrics"
	"github.com/HappyFeet07/WyvernV3Fork/internal/testtoken"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/HappyFeet07/WyvernV3Fork/registry"
	"github.com/HappyFeet07/WyvernV3Fork/static"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	aliceKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	bobKeyHex   = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
	startTime   = 1_600_000_000
)

var (
	deployer = common.HexToAddress("0x000000000000000000000000000000000000d0d0")
	operator = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
)

type harness struct {
	ctx     context.Context
	clock   *ledger.ManualClock
	client  *wyvern.Client
	metrics *metrics.Metrics

	alice, bob           *chain.OrderBuilder
	aliceProxy, bobProxy common.Address
	tokenA, tokenB       *testtoken.Session
}

func mustKey(t *testing.T, hex string) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(hex)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	return key
}

func newHarness(t *testing.T, journal *events.Journal, sinks ...events.Sink) *harness {
	t.Helper()
	h := &harness{
		ctx:     context.Background(),
		clock:   ledger.NewManualClock(startTime),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}

	client, err := wyvern.NewClient(h.ctx, wyvern.ClientConfig{
		ChainID:  wyvern.ChainIDDevelopment,
		Deployer: deployer,
		Clock:    h.clock,
		Logger:   logging.Discard(),
		Metrics:  h.metrics,
		Journal:  journal,
		Sinks:    sinks,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	h.client = client

	if h.alice, err = client.NewOrderBuilder(mustKey(t, aliceKeyHex)); err != nil {
		t.Fatalf("alice builder: %v", err)
	}
	if h.bob, err = client.NewOrderBuilder(mustKey(t, bobKeyHex)); err != nil {
		t.Fatalf("bob builder: %v", err)
	}
	if h.aliceProxy, err = client.RegisterProxy(h.ctx, h.alice.Maker()); err != nil {
		t.Fatalf("register alice proxy: %v", err)
	}
	if h.bobProxy, err = client.RegisterProxy(h.ctx, h.bob.Maker()); err != nil {
		t.Fatalf("register bob proxy: %v", err)
	}

	h.tokenA = h.deployToken(t, h.alice.Maker(), h.aliceProxy)
	h.tokenB = h.deployToken(t, h.bob.Maker(), h.bobProxy)
	return h
}

func (h *harness) deployToken(t *testing.T, holder, holderProxy common.Address) *testtoken.Session {
	t.Helper()
	token, err := testtoken.Deploy(h.ctx, h.client.Ledger(), deployer)
	if err != nil {
		t.Fatalf("deploy token: %v", err)
	}
	if err := token.Mint(h.ctx, holder, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := token.Approve(h.ctx, holder, holderProxy, big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return token
}

func (h *harness) signed(t *testing.T, b *chain.OrderBuilder, kind chain.SignatureKind) *chain.SignedOrder {
	t.Helper()
	sel, ok := h.client.Selector("any")
	if !ok {
		t.Fatal("any predicate not registered")
	}
	signed, err := b.BuildSignedOrder(&chain.OrderData{
		Registry:       h.client.Registry().Address(),
		StaticTarget:   h.client.Static(),
		StaticSelector: sel,
		MaximumFill:    big.NewInt(1),
	}, kind)
	if err != nil {
		t.Fatalf("build signed order: %v", err)
	}
	return signed
}

func (h *harness) transferFrom(t *testing.T, token *testtoken.Session, from, to common.Address, amount int64) chain.Call {
	t.Helper()
	data, err := chain.PackTransferFrom(from, to, big.NewInt(amount))
	if err != nil {
		t.Fatalf("pack transferFrom: %v", err)
	}
	return chain.Call{Target: token.Address(), HowToCall: chain.HowToCallCall, Data: data}
}

// swap is alice's 10 A for bob's 20 B
func (h *harness) swap(t *testing.T) *exchange.Match {
	t.Helper()
	first := h.signed(t, h.alice, chain.SignatureTyped)
	second := h.signed(t, h.bob, chain.SignaturePersonal)
	return &exchange.Match{
		First:           first.Order,
		FirstCall:       h.transferFrom(t, h.tokenA, h.alice.Maker(), h.bob.Maker(), 10),
		FirstSignature:  first.Signature,
		Second:          second.Order,
		SecondCall:      h.transferFrom(t, h.tokenB, h.bob.Maker(), h.alice.Maker(), 20),
		SecondSignature: second.Signature,
	}
}

func (h *harness) balance(t *testing.T, token *testtoken.Session, owner common.Address) int64 {
	t.Helper()
	b, err := token.BalanceOf(h.ctx, owner)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	return b.Int64()
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()

	if _, err := wyvern.NewClient(ctx, wyvern.ClientConfig{ChainID: 999, Deployer: deployer}); !errors.Is(err, wyvern.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam for unknown chain, got %v", err)
	}
	if _, err := wyvern.NewClient(ctx, wyvern.ClientConfig{ChainID: wyvern.ChainIDDevelopment}); !errors.Is(err, wyvern.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam without deployer, got %v", err)
	}
}

func TestNewClientDeploysProtocol(t *testing.T) {
	h := newHarness(t, nil)

	info, err := h.client.Info(h.ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Name == "" || info.Version == "" {
		t.Fatalf("expected name and version, got %+v", info)
	}
	if info.ChainID != "50" {
		t.Fatalf("expected chain 50, got %s", info.ChainID)
	}
	if info.Exchange != h.client.Exchange().Address().Hex() {
		t.Fatalf("exchange mismatch: %s", info.Exchange)
	}

	grant, err := h.client.GrantState(h.ctx, h.client.Exchange().Address())
	if err != nil {
		t.Fatalf("grant state: %v", err)
	}
	if !grant.Authenticated || grant.State != "granted" {
		t.Fatalf("expected exchange authenticated, got %+v", grant)
	}

	for _, name := range []string{"any", "anyNoFill", "anyAddOne"} {
		if _, ok := h.client.Selector(name); !ok {
			t.Fatalf("expected built-in predicate %s", name)
		}
	}
	if _, ok := h.client.Selector("missing"); ok {
		t.Fatal("unexpected selector for unregistered predicate")
	}

	proxyAddr, err := h.client.ProxyOf(h.ctx, h.alice.Maker())
	if err != nil {
		t.Fatalf("proxy of: %v", err)
	}
	if proxyAddr != h.aliceProxy {
		t.Fatalf("expected proxy %s, got %s", h.aliceProxy.Hex(), proxyAddr.Hex())
	}
	if _, err := h.client.RegisterProxy(h.ctx, h.alice.Maker()); !errors.Is(err, registry.ErrAlreadyHasProxy) {
		t.Fatalf("expected ErrAlreadyHasProxy, got %v", err)
	}
}

func TestCustomPredicateIsRegistered(t *testing.T) {
	client, err := wyvern.NewClient(context.Background(), wyvern.ClientConfig{
		ChainID:  wyvern.ChainIDDevelopment,
		Deployer: deployer,
		Clock:    ledger.NewManualClock(startTime),
		Logger:   logging.Discard(),
		Predicates: map[string]static.Predicate{
			"never": static.PredicateFunc(func(*chain.StaticArgs) (*big.Int, bool) { return nil, false }),
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	sel, ok := client.Selector("never")
	if !ok {
		t.Fatal("expected custom predicate selector")
	}
	if sel != chain.PredicateSelector("never") {
		t.Fatalf("unexpected selector %x", sel)
	}
}

func TestAtomicMatchSettlesSwap(t *testing.T) {
	h := newHarness(t, nil)
	m := h.swap(t)

	result, err := h.client.AtomicMatch(h.ctx, operator, m)
	if err != nil {
		t.Fatalf("atomic match: %v", err)
	}
	if result.Matched == nil {
		t.Fatalf("expected matched summary, got %+v", result)
	}
	if result.Matched.FirstHash != m.First.Hash().Hex() || result.Matched.NewFirstFill != "1" {
		t.Fatalf("unexpected matched summary %+v", result.Matched)
	}

	if got := h.balance(t, h.tokenA, h.bob.Maker()); got != 10 {
		t.Fatalf("expected bob to hold 10 A, got %d", got)
	}
	if got := h.balance(t, h.tokenB, h.alice.Maker()); got != 20 {
		t.Fatalf("expected alice to hold 20 B, got %d", got)
	}

	fill, err := h.client.Fill(h.ctx, m.First.Maker, m.First.Hash())
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if fill.Int64() != 1 {
		t.Fatalf("expected fill 1, got %s", fill)
	}

	if _, err := h.client.AtomicMatch(h.ctx, operator, m); !errors.Is(err, exchange.ErrOrderFilled) {
		t.Fatalf("expected ErrOrderFilled on replay, got %v", err)
	}

	if got := testutil.ToFloat64(h.metrics.Matches.WithLabelValues(wyvern.MatchSettled)); got != 1 {
		t.Fatalf("expected 1 settled match, got %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.Matches.WithLabelValues(wyvern.MatchFilled)); got != 1 {
		t.Fatalf("expected 1 filled match, got %v", got)
	}
}

func TestAtomicMatchRejectsBadSignature(t *testing.T) {
	h := newHarness(t, nil)
	m := h.swap(t)
	m.FirstSignature = m.SecondSignature

	if _, err := h.client.AtomicMatch(h.ctx, operator, m); !errors.Is(err, exchange.ErrOrderUnauthorized) {
		t.Fatalf("expected ErrOrderUnauthorized, got %v", err)
	}
	if got := h.balance(t, h.tokenA, h.alice.Maker()); got != 100 {
		t.Fatalf("expected alice untouched, got %d", got)
	}
	if got := testutil.ToFloat64(h.metrics.Matches.WithLabelValues(wyvern.MatchUnauthorized)); got != 1 {
		t.Fatalf("expected 1 unauthorized match, got %v", got)
	}
}

func TestAtomicMatchRequiresBothOrders(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.client.AtomicMatch(h.ctx, operator, &exchange.Match{}); !errors.Is(err, wyvern.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam, got %v", err)
	}
}

func TestCancelOrderBlocksMatch(t *testing.T) {
	h := newHarness(t, nil)
	m := h.swap(t)

	if _, err := h.client.CancelOrder(h.ctx, m.First); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := h.client.AtomicMatch(h.ctx, operator, m); !errors.Is(err, exchange.ErrOrderFilled) {
		t.Fatalf("expected ErrOrderFilled after cancel, got %v", err)
	}
	if _, err := h.client.SetOrderFill(h.ctx, m.First.Maker, m.First.Hash(), big.NewInt(-1)); !errors.Is(err, wyvern.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam for negative fill, got %v", err)
	}
}

func TestApproveOrderAuthorizesWithoutSignature(t *testing.T) {
	h := newHarness(t, nil)
	order := h.signed(t, h.alice, chain.SignatureTyped).Order
	hash := order.Hash()

	ok, err := h.client.ValidateOrderAuthorization(h.ctx, operator, hash, order.Maker, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("expected unsigned order to be unauthorized")
	}

	result, err := h.client.ApproveOrder(h.ctx, order, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0] != exchange.EventOrderApproved {
		t.Fatalf("expected OrderApproved event, got %v", result.Events)
	}

	approved, err := h.client.Approved(h.ctx, order.Maker, hash)
	if err != nil {
		t.Fatalf("approved: %v", err)
	}
	if !approved {
		t.Fatal("expected approval recorded")
	}
	if ok, _ := h.client.ValidateOrderAuthorization(h.ctx, operator, hash, order.Maker, nil); !ok {
		t.Fatal("expected approved order to be authorized")
	}
	if _, err := h.client.ApproveOrder(h.ctx, order, false); !errors.Is(err, exchange.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}
}

func TestGrantLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	contract := common.HexToAddress("0x00000000000000000000000000000000000c0c0c")

	if _, err := h.client.StartGrantAuthentication(h.ctx, operator, contract); !errors.Is(err, registry.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := h.client.StartGrantAuthentication(h.ctx, deployer, contract); err != nil {
		t.Fatalf("start grant: %v", err)
	}
	grant, err := h.client.GrantState(h.ctx, contract)
	if err != nil {
		t.Fatalf("grant state: %v", err)
	}
	if grant.State != "pending" || grant.Since != startTime || grant.Authenticated {
		t.Fatalf("unexpected pending grant %+v", grant)
	}

	if _, err := h.client.EndGrantAuthentication(h.ctx, deployer, contract); !errors.Is(err, registry.ErrInvalidGrantState) {
		t.Fatalf("expected early end to fail, got %v", err)
	}

	h.clock.Advance(registry.DefaultDelay)
	if _, err := h.client.EndGrantAuthentication(h.ctx, deployer, contract); err != nil {
		t.Fatalf("end grant: %v", err)
	}
	if grant, _ = h.client.GrantState(h.ctx, contract); !grant.Authenticated {
		t.Fatalf("expected granted contract, got %+v", grant)
	}

	if _, err := h.client.RevokeAuthentication(h.ctx, deployer, contract); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if grant, _ = h.client.GrantState(h.ctx, contract); grant.State != "revoked" || grant.Authenticated {
		t.Fatalf("expected revoked contract, got %+v", grant)
	}
}

func TestEventsFromJournal(t *testing.T) {
	journal, err := events.OpenJournal(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	h := newHarness(t, journal)

	if _, err := h.client.AtomicMatch(h.ctx, operator, h.swap(t)); err != nil {
		t.Fatalf("atomic match: %v", err)
	}

	matched, err := h.client.Events(h.ctx, exchange.EventOrdersMatched, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("expected 1 OrdersMatched event, got %d", len(matched))
	}
	if matched[0].Contract != h.client.Exchange().Address().Hex() {
		t.Fatalf("expected exchange contract, got %s", matched[0].Contract)
	}

	registered, err := h.client.Events(h.ctx, registry.EventProxyRegistered, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(registered) != 2 {
		t.Fatalf("expected 2 ProxyRegistered events, got %d", len(registered))
	}
}

func TestEventsWithoutJournal(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.client.Events(h.ctx, "", 10); !errors.Is(err, wyvern.ErrJournalDisabled) {
		t.Fatalf("expected ErrJournalDisabled, got %v", err)
	}
}

func TestMatchBatchContinuesPastFailures(t *testing.T) {
	h := newHarness(t, nil)
	m := h.swap(t)

	if _, err := h.client.MatchBatch(h.ctx, operator, nil); !errors.Is(err, wyvern.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam for empty batch, got %v", err)
	}

	results, err := h.client.MatchBatch(h.ctx, operator, []*exchange.Match{m, m})
	if err != nil {
		t.Fatalf("match batch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success || results[0].Result == nil {
		t.Fatalf("expected first match to settle, got %+v", results[0])
	}
	if results[1].Success || results[1].Error == "" {
		t.Fatalf("expected second match to fail, got %+v", results[1])
	}
}

func TestClosedClientRejectsTransactions(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := h.client.ApproveOrderHash(h.ctx, h.alice.Maker(), common.Hash{1}); !errors.Is(err, wyvern.ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}
