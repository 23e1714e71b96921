package exchange_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/atomicizer"
	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/internal/testtoken"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/HappyFeet07/WyvernV3Fork/proxy"
	"github.com/HappyFeet07/WyvernV3Fork/registry"
	"github.com/HappyFeet07/WyvernV3Fork/static"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	aliceKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	bobKeyHex   = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
	startTime   = 1_600_000_000
)

var (
	deployer = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	chainID  = big.NewInt(50)
)

type fixture struct {
	ctx        context.Context
	ledger     *ledger.Ledger
	clock      *ledger.ManualClock
	registry   *registry.Session
	exchange   *exchange.Session
	static     *static.Static
	staticAddr common.Address
	atomicizer common.Address
	tokenA     *testtoken.Session
	tokenB     *testtoken.Session

	alice, bob               *chain.OrderBuilder
	aliceProxy, bobProxy     common.Address
	rejectSel, fillTooFarSel [4]byte
	seen                     *chain.StaticArgs
}

func mustKey(t *testing.T, hex string) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(hex)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	return key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), clock: ledger.NewManualClock(startTime)}

	l, err := ledger.New(f.clock)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	f.ledger = l

	if f.registry, err = registry.Deploy(f.ctx, l, deployer, registry.DefaultDelay); err != nil {
		t.Fatalf("deploy registry: %v", err)
	}
	if f.atomicizer, err = atomicizer.Deploy(f.ctx, l, deployer); err != nil {
		t.Fatalf("deploy atomicizer: %v", err)
	}

	f.static = static.New(f.atomicizer)
	f.rejectSel = f.static.Register("reject", static.PredicateFunc(func(*chain.StaticArgs) (*big.Int, bool) {
		return nil, false
	}))
	f.fillTooFarSel = f.static.Register("fillTooFar", static.PredicateFunc(func(args *chain.StaticArgs) (*big.Int, bool) {
		return new(big.Int).Add(args.MaximumFill, big.NewInt(1)), true
	}))
	f.static.Register("record", static.PredicateFunc(func(args *chain.StaticArgs) (*big.Int, bool) {
		if f.seen == nil {
			f.seen = args
		}
		return big.NewInt(1), true
	}))
	if f.staticAddr, err = static.Deploy(f.ctx, l, deployer, f.static); err != nil {
		t.Fatalf("deploy static: %v", err)
	}

	if f.exchange, err = exchange.Deploy(f.ctx, l, deployer, chainID, []common.Address{f.registry.Address()}, ""); err != nil {
		t.Fatalf("deploy exchange: %v", err)
	}
	if _, err := f.registry.GrantInitialAuthentication(f.ctx, deployer, f.exchange.Address()); err != nil {
		t.Fatalf("grant exchange: %v", err)
	}

	if f.alice, err = chain.NewOrderBuilder(f.exchange.Address(), chainID, mustKey(t, aliceKeyHex)); err != nil {
		t.Fatalf("alice builder: %v", err)
	}
	if f.bob, err = chain.NewOrderBuilder(f.exchange.Address(), chainID, mustKey(t, bobKeyHex)); err != nil {
		t.Fatalf("bob builder: %v", err)
	}
	if f.aliceProxy, err = f.registry.RegisterProxy(f.ctx, f.alice.Maker()); err != nil {
		t.Fatalf("register alice proxy: %v", err)
	}
	if f.bobProxy, err = f.registry.RegisterProxy(f.ctx, f.bob.Maker()); err != nil {
		t.Fatalf("register bob proxy: %v", err)
	}

	if f.tokenA, err = testtoken.Deploy(f.ctx, l, deployer); err != nil {
		t.Fatalf("deploy token A: %v", err)
	}
	if f.tokenB, err = testtoken.Deploy(f.ctx, l, deployer); err != nil {
		t.Fatalf("deploy token B: %v", err)
	}
	f.fund(t, f.tokenA, f.alice.Maker(), f.aliceProxy, 100)
	f.fund(t, f.tokenB, f.bob.Maker(), f.bobProxy, 100)
	return f
}

func (f *fixture) fund(t *testing.T, token *testtoken.Session, user, userProxy common.Address, amount int64) {
	t.Helper()
	if err := token.Mint(f.ctx, user, big.NewInt(amount)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := token.Approve(f.ctx, user, userProxy, big.NewInt(amount)); err != nil {
		t.Fatalf("approve proxy: %v", err)
	}
}

func (f *fixture) order(t *testing.T, b *chain.OrderBuilder, selector [4]byte, kind chain.SignatureKind) *chain.SignedOrder {
	t.Helper()
	signed, err := b.BuildSignedOrder(&chain.OrderData{
		Registry:       f.registry.Address(),
		StaticTarget:   f.staticAddr,
		StaticSelector: selector,
		MaximumFill:    big.NewInt(1),
	}, kind)
	if err != nil {
		t.Fatalf("build signed order: %v", err)
	}
	return signed
}

func (f *fixture) transferFrom(t *testing.T, token *testtoken.Session, from, to common.Address, amount int64) chain.Call {
	t.Helper()
	data, err := chain.PackTransferFrom(from, to, big.NewInt(amount))
	if err != nil {
		t.Fatalf("pack transferFrom: %v", err)
	}
	return chain.Call{Target: token.Address(), HowToCall: chain.HowToCallCall, Data: data}
}

// swap is alice's 10 A for bob's 20 B
func (f *fixture) swap(t *testing.T, first, second *chain.SignedOrder) *exchange.Match {
	t.Helper()
	return &exchange.Match{
		First:           first.Order,
		FirstCall:       f.transferFrom(t, f.tokenA, f.alice.Maker(), f.bob.Maker(), 10),
		FirstSignature:  first.Signature,
		Second:          second.Order,
		SecondCall:      f.transferFrom(t, f.tokenB, f.bob.Maker(), f.alice.Maker(), 20),
		SecondSignature: second.Signature,
		Metadata:        common.HexToHash("0x6d65746164617461"),
	}
}

func (f *fixture) balance(t *testing.T, token *testtoken.Session, addr common.Address) int64 {
	t.Helper()
	b, err := token.BalanceOf(f.ctx, addr)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	return b.Int64()
}

func (f *fixture) fill(t *testing.T, o *chain.Order) int64 {
	t.Helper()
	fill, err := f.exchange.Fills(f.ctx, o.Maker, o.Hash())
	if err != nil {
		t.Fatalf("fills: %v", err)
	}
	return fill.Int64()
}

func (f *fixture) assertUntouched(t *testing.T, m *exchange.Match) {
	t.Helper()
	if f.fill(t, m.First) != 0 || f.fill(t, m.Second) != 0 {
		t.Fatalf("expected fills unchanged")
	}
	if f.balance(t, f.tokenA, f.alice.Maker()) != 100 || f.balance(t, f.tokenB, f.bob.Maker()) != 100 {
		t.Fatalf("expected no asset movement")
	}
}

func TestAtomicMatchSettles(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAnyAddOne, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAnyAddOne, chain.SignaturePersonal)
	m := f.swap(t, first, second)

	receipt, err := f.exchange.AtomicMatch(f.ctx, operator, m)
	if err != nil {
		t.Fatalf("atomic match: %v", err)
	}

	if got := f.balance(t, f.tokenA, f.bob.Maker()); got != 10 {
		t.Fatalf("expected bob to receive 10 A, got %d", got)
	}
	if got := f.balance(t, f.tokenB, f.alice.Maker()); got != 20 {
		t.Fatalf("expected alice to receive 20 B, got %d", got)
	}
	if f.fill(t, first.Order) != 1 || f.fill(t, second.Order) != 1 {
		t.Fatalf("expected both fills to be 1")
	}

	var matched *exchange.OrdersMatchedEvent
	for _, ev := range receipt.Events {
		if ev.Name == exchange.EventOrdersMatched {
			data := ev.Data.(exchange.OrdersMatchedEvent)
			matched = &data
		}
	}
	if matched == nil {
		t.Fatalf("expected OrdersMatched event")
	}
	if matched.FirstHash != first.Order.Hash() || matched.SecondMaker != f.bob.Maker() || matched.Metadata != m.Metadata {
		t.Fatalf("unexpected OrdersMatched payload: %+v", matched)
	}
	if matched.NewFirstFill.Int64() != 1 || matched.NewSecondFill.Int64() != 1 {
		t.Fatalf("unexpected fills in event: %+v", matched)
	}

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, exchange.ErrOrderFilled) {
		t.Fatalf("expected ErrOrderFilled on replay, got %v", err)
	}
}

func TestAtomicMatchPredicateRejection(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, f.rejectSel, chain.SignatureTyped)
	m := f.swap(t, first, second)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, exchange.ErrPredicateRejected) {
		t.Fatalf("expected ErrPredicateRejected, got %v", err)
	}
	f.assertUntouched(t, m)
}

func TestAtomicMatchFillAboveMaximum(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, f.fillTooFarSel, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
	m := f.swap(t, first, second)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, exchange.ErrFillExceedsMaximum) {
		t.Fatalf("expected ErrFillExceedsMaximum, got %v", err)
	}
	f.assertUntouched(t, m)
}

func TestAtomicMatchSelfMatch(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	m := f.swap(t, first, first)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, exchange.ErrSelfMatch) {
		t.Fatalf("expected ErrSelfMatch, got %v", err)
	}
}

func TestAtomicMatchUnauthorized(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
	m := f.swap(t, first, second)
	m.FirstSignature = second.Signature

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, exchange.ErrOrderUnauthorized) {
		t.Fatalf("expected ErrOrderUnauthorized, got %v", err)
	}
	f.assertUntouched(t, m)
}

func TestAtomicMatchInvalidParameters(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)

	future, err := f.bob.BuildSignedOrder(&chain.OrderData{
		Registry:       f.registry.Address(),
		StaticTarget:   f.staticAddr,
		StaticSelector: static.SelectorAny,
		MaximumFill:    big.NewInt(1),
		ListingTime:    big.NewInt(startTime + 60),
	}, chain.SignatureTyped)
	if err != nil {
		t.Fatalf("build order: %v", err)
	}
	m := f.swap(t, first, future)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, exchange.ErrInvalidOrderParameters) {
		t.Fatalf("expected ErrInvalidOrderParameters, got %v", err)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); err != nil {
		t.Fatalf("expected match once listed: %v", err)
	}
}

func TestAtomicMatchFailedCallRevertsEverything(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAnyAddOne, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAnyAddOne, chain.SignatureTyped)
	m := f.swap(t, first, second)
	m.SecondCall = f.transferFrom(t, f.tokenB, f.bob.Maker(), f.alice.Maker(), 500)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, exchange.ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	f.assertUntouched(t, m)
}

func TestAtomicMatchNeedsGrantedExchange(t *testing.T) {
	f := newFixture(t)
	if _, err := f.registry.RevokeAuthentication(f.ctx, deployer, f.exchange.Address()); err != nil {
		t.Fatalf("revoke exchange: %v", err)
	}
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
	m := f.swap(t, first, second)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, proxy.ErrUnauthorized) {
		t.Fatalf("expected proxy ErrUnauthorized, got %v", err)
	}
	f.assertUntouched(t, m)
}

func TestAtomicMatchRevokedProxy(t *testing.T) {
	f := newFixture(t)
	if _, err := proxy.NewSession(f.ledger, f.bobProxy).SetRevoke(f.ctx, f.bob.Maker(), true); err != nil {
		t.Fatalf("set revoke: %v", err)
	}
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
	m := f.swap(t, first, second)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, proxy.ErrUnauthorized) {
		t.Fatalf("expected proxy ErrUnauthorized, got %v", err)
	}
	f.assertUntouched(t, m)
}

func TestAtomicMatchCallChecks(t *testing.T) {
	f := newFixture(t)
	other, err := registry.Deploy(f.ctx, f.ledger, deployer, registry.DefaultDelay)
	if err != nil {
		t.Fatalf("deploy second registry: %v", err)
	}
	carol := common.HexToAddress("0x00000000000000000000000000000000000ca201")

	tests := []struct {
		name   string
		mutate func(m *exchange.Match)
		want   error
	}{
		{
			name: "registry not allowed",
			mutate: func(m *exchange.Match) {
				m.First.Registry = other.Address()
				m.First.Maker = operator
			},
			want: exchange.ErrRegistryNotAllowed,
		},
		{
			name:   "call target without code",
			mutate: func(m *exchange.Match) { m.FirstCall.Target = carol },
			want:   exchange.ErrCallTargetMissing,
		},
		{
			name:   "maker without proxy",
			mutate: func(m *exchange.Match) { m.First.Maker = operator },
			want:   exchange.ErrProxyNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
			second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
			m := f.swap(t, first, second)
			tt.mutate(m)

			// operator is the matcher, so an order it makes needs no signature
			if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAtomicMatchProxyImplementationMismatch(t *testing.T) {
	f := newFixture(t)
	impl, _, err := f.ledger.Deploy(f.ctx, deployer, proxy.NewAuthenticatedProxy())
	if err != nil {
		t.Fatalf("deploy implementation: %v", err)
	}
	if _, err := proxy.NewSession(f.ledger, f.aliceProxy).UpgradeTo(f.ctx, f.alice.Maker(), impl); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, f.swap(t, first, second)); !errors.Is(err, exchange.ErrProxyImplementationMismatch) {
		t.Fatalf("expected ErrProxyImplementationMismatch, got %v", err)
	}
}

func TestAtomicMatchPredicateInputs(t *testing.T) {
	f := newFixture(t)
	recordSel := chain.PredicateSelector("record")
	first := f.order(t, f.alice, recordSel, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
	m := f.swap(t, first, second)

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); err != nil {
		t.Fatalf("atomic match: %v", err)
	}
	if f.seen == nil {
		t.Fatalf("expected predicate to run")
	}
	if f.seen.Matcher != operator || f.seen.Maker != f.alice.Maker() || f.seen.CounterMaker != f.bob.Maker() {
		t.Fatalf("unexpected predicate identities: %+v", f.seen)
	}
	if f.seen.Target != f.tokenA.Address() || f.seen.CounterTarget != f.tokenB.Address() {
		t.Fatalf("unexpected predicate targets: %+v", f.seen)
	}
	if f.seen.Fill.Sign() != 0 || f.seen.MaximumFill.Int64() != 1 {
		t.Fatalf("unexpected predicate fills: %+v", f.seen)
	}
}

func TestAtomicMatchThroughAtomicizer(t *testing.T) {
	f := newFixture(t)
	carol := common.HexToAddress("0x00000000000000000000000000000000000ca201")

	toBob := f.transferFrom(t, f.tokenA, f.alice.Maker(), f.bob.Maker(), 10)
	toCarol := f.transferFrom(t, f.tokenA, f.alice.Maker(), carol, 5)
	batch, err := chain.PackAtomicize([]chain.BatchCall{
		{To: toBob.Target, Data: toBob.Data},
		{To: toCarol.Target, Data: toCarol.Data},
	})
	if err != nil {
		t.Fatalf("pack atomicize: %v", err)
	}

	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
	m := f.swap(t, first, second)
	m.FirstCall = chain.Call{Target: f.atomicizer, HowToCall: chain.HowToCallDelegateCall, Data: batch}

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); err != nil {
		t.Fatalf("atomic match: %v", err)
	}
	if f.balance(t, f.tokenA, f.bob.Maker()) != 10 || f.balance(t, f.tokenA, carol) != 5 {
		t.Fatalf("expected both batched transfers to land")
	}
	if got, _ := static.Atomicizer(f.ctx, f.ledger, f.staticAddr); got != f.atomicizer {
		t.Fatalf("expected static to report the atomicizer")
	}
}

// reentrant re-submits a match from inside a settlement call
type reentrant struct {
	exchange common.Address
	input    []byte
	err      error
}

func (r *reentrant) Call(env *ledger.Env, _ []byte) ([]byte, error) {
	_, r.err = env.Call(r.exchange, r.input)
	return nil, nil
}

func TestReentrantMatchSeesCommittedFills(t *testing.T) {
	f := newFixture(t)
	attacker := &reentrant{exchange: f.exchange.Address()}
	attackerAddr, _, err := f.ledger.Deploy(f.ctx, deployer, attacker)
	if err != nil {
		t.Fatalf("deploy reentrant target: %v", err)
	}

	first := f.order(t, f.alice, static.SelectorAnyAddOne, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAnyAddOne, chain.SignatureTyped)
	m := f.swap(t, first, second)
	if attacker.input, err = m.Pack(); err != nil {
		t.Fatalf("pack match: %v", err)
	}
	m.FirstCall = chain.Call{Target: attackerAddr, HowToCall: chain.HowToCallCall}

	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); err != nil {
		t.Fatalf("atomic match: %v", err)
	}
	if !errors.Is(attacker.err, exchange.ErrOrderFilled) {
		t.Fatalf("expected reentrant match to hit ErrOrderFilled, got %v", attacker.err)
	}
	if f.balance(t, f.tokenA, f.bob.Maker()) != 0 {
		t.Fatalf("expected reentrant settlement to move nothing")
	}
}

func TestCancelledOrderCannotMatch(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)

	if _, err := f.exchange.SetOrderFill(f.ctx, f.alice.Maker(), first.Order.Hash(), first.Order.MaximumFill); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.exchange.AtomicMatch(f.ctx, operator, f.swap(t, first, second)); !errors.Is(err, exchange.ErrOrderFilled) {
		t.Fatalf("expected ErrOrderFilled, got %v", err)
	}
}
