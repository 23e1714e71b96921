package exchange_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/HappyFeet07/WyvernV3Fork/static"
	"github.com/ethereum/go-ethereum/common"
)

// wallet is a contract maker that accepts exactly one signature blob
type wallet struct {
	accept []byte
}

func (w *wallet) Call(_ *ledger.Env, input []byte) ([]byte, error) {
	method, args, err := ledger.Dispatch(&chain.ERC1271ABI, input)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(args[1].([]byte), w.accept) {
		return method.Outputs.Pack(chain.ERC1271MagicValue)
	}
	return method.Outputs.Pack([4]byte{})
}

func (f *fixture) authorized(t *testing.T, sender common.Address, hash common.Hash, maker common.Address, sig []byte) bool {
	t.Helper()
	ok, err := f.exchange.ValidateOrderAuthorization(f.ctx, sender, hash, maker, sig)
	if err != nil {
		t.Fatalf("validate authorization: %v", err)
	}
	return ok
}

func TestHashingMatchesOffchain(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped).Order

	hash, err := f.exchange.HashOrder(f.ctx, order)
	if err != nil {
		t.Fatalf("hash order: %v", err)
	}
	if hash != order.Hash() {
		t.Fatalf("expected on-ledger hash %s, got %s", order.Hash().Hex(), hash.Hex())
	}

	separator, err := f.exchange.DomainSeparator(f.ctx)
	if err != nil {
		t.Fatalf("domain separator: %v", err)
	}
	if separator != f.alice.DomainSeparator() {
		t.Fatalf("expected builder and exchange to share a domain")
	}

	hashToSign, err := f.exchange.HashToSign(f.ctx, hash)
	if err != nil {
		t.Fatalf("hash to sign: %v", err)
	}
	if hashToSign != chain.HashToSign(separator, hash) {
		t.Fatalf("unexpected hash to sign %s", hashToSign.Hex())
	}

	name, _ := f.exchange.Name(f.ctx)
	version, _ := f.exchange.Version(f.ctx)
	id, _ := f.exchange.ChainID(f.ctx)
	if name != "Wyvern Exchange" || version != "3.1" || id.Cmp(chainID) != 0 {
		t.Fatalf("unexpected domain fields %q %q %v", name, version, id)
	}

	allowed, _ := f.exchange.Registries(f.ctx, f.registry.Address())
	other, _ := f.exchange.Registries(f.ctx, operator)
	if !allowed || other {
		t.Fatalf("unexpected registry allow-list: %v %v", allowed, other)
	}
}

func TestValidateOrderParameters(t *testing.T) {
	f := newFixture(t)
	now := int64(startTime)

	tests := []struct {
		name       string
		static     common.Address
		listing    int64
		expiration int64
		want       bool
	}{
		{"open order", f.staticAddr, 0, 0, true},
		{"static target without code", operator, 0, 0, false},
		{"listed now", f.staticAddr, now, 0, true},
		{"listed in the future", f.staticAddr, now + 1, 0, false},
		{"expires now", f.staticAddr, 0, now, false},
		{"expires next second", f.staticAddr, 0, now + 1, true},
		{"expiration of one", f.staticAddr, 0, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &chain.Order{
				Registry:       f.registry.Address(),
				Maker:          f.alice.Maker(),
				StaticTarget:   tt.static,
				StaticSelector: static.SelectorAny,
				MaximumFill:    big.NewInt(1),
				ListingTime:    big.NewInt(tt.listing),
				ExpirationTime: big.NewInt(tt.expiration),
				Salt:           big.NewInt(1),
			}
			got, err := f.exchange.ValidateOrderParameters(f.ctx, order)
			if err != nil {
				t.Fatalf("validate parameters: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestValidateOrderAuthorizationBySignature(t *testing.T) {
	f := newFixture(t)
	typed := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	personal := f.order(t, f.alice, static.SelectorAny, chain.SignaturePersonal)
	maker := f.alice.Maker()

	if !f.authorized(t, operator, typed.Order.Hash(), maker, typed.Signature) {
		t.Fatalf("expected typed signature to authorize")
	}
	if !f.authorized(t, operator, personal.Order.Hash(), maker, personal.Signature) {
		t.Fatalf("expected personal signature to authorize")
	}
	if f.authorized(t, operator, typed.Order.Hash(), f.bob.Maker(), typed.Signature) {
		t.Fatalf("expected signature to bind the maker")
	}
	if f.authorized(t, operator, typed.Order.Hash(), maker, []byte{0x01, 0x02}) {
		t.Fatalf("expected malformed signature to be rejected")
	}
	if f.authorized(t, operator, typed.Order.Hash(), common.Address{}, typed.Signature) {
		t.Fatalf("expected zero maker to never authorize by signature")
	}
	if !f.authorized(t, maker, typed.Order.Hash(), maker, nil) {
		t.Fatalf("expected the maker itself to be authorized")
	}
}

func TestValidateOrderAuthorizationByContract(t *testing.T) {
	f := newFixture(t)
	w := &wallet{accept: []byte("let it through")}
	walletAddr, _, err := f.ledger.Deploy(f.ctx, deployer, w)
	if err != nil {
		t.Fatalf("deploy wallet: %v", err)
	}
	hash := common.HexToHash("0x01")

	if !f.authorized(t, operator, hash, walletAddr, []byte("let it through")) {
		t.Fatalf("expected wallet to accept its signature")
	}
	if f.authorized(t, operator, hash, walletAddr, []byte("something else")) {
		t.Fatalf("expected wallet to refuse an unknown signature")
	}
}

func TestApproveOrder(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped).Order
	hash := order.Hash()

	if _, err := f.exchange.ApproveOrder(f.ctx, f.bob.Maker(), order, true); !errors.Is(err, exchange.ErrNotMaker) {
		t.Fatalf("expected ErrNotMaker, got %v", err)
	}

	receipt, err := f.exchange.ApproveOrder(f.ctx, f.alice.Maker(), order, true)
	if err != nil {
		t.Fatalf("approve order: %v", err)
	}
	if len(receipt.Events) != 1 || receipt.Events[0].Name != exchange.EventOrderApproved {
		t.Fatalf("expected one OrderApproved event, got %+v", receipt.Events)
	}
	ev := receipt.Events[0].Data.(exchange.OrderApprovedEvent)
	if ev.Hash != hash || !ev.OrderbookInclusionDesired || ev.Salt.Cmp(order.Salt) != 0 {
		t.Fatalf("unexpected OrderApproved payload: %+v", ev)
	}

	approved, err := f.exchange.Approved(f.ctx, f.alice.Maker(), hash)
	if err != nil || !approved {
		t.Fatalf("expected order to be approved, got %v %v", approved, err)
	}
	if !f.authorized(t, operator, hash, f.alice.Maker(), nil) {
		t.Fatalf("expected approval to authorize without a signature")
	}

	if _, err := f.exchange.ApproveOrder(f.ctx, f.alice.Maker(), order, false); !errors.Is(err, exchange.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}
	if _, err := f.exchange.ApproveOrderHash(f.ctx, f.alice.Maker(), hash); !errors.Is(err, exchange.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved for the hash, got %v", err)
	}
}

func TestOrderbookInclusionFlagLeavesFillUntouched(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)

	receipt, err := f.exchange.ApproveOrder(f.ctx, f.alice.Maker(), first.Order, true)
	if err != nil {
		t.Fatalf("approve order: %v", err)
	}
	for _, ev := range receipt.Events {
		if ev.Name == exchange.EventOrderFillChanged {
			t.Fatalf("expected no fill change from an approval, got %+v", ev)
		}
	}
	if got := f.fill(t, first.Order); got != 0 {
		t.Fatalf("expected fill 0 after approval with inclusion flag, got %d", got)
	}

	// a maximumFill of 1 still leaves room for one match
	m := f.swap(t, first, second)
	m.FirstSignature = nil
	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); err != nil {
		t.Fatalf("atomic match: %v", err)
	}
	if got := f.fill(t, first.Order); got != 1 {
		t.Fatalf("expected fill 1 after match, got %d", got)
	}
}

func TestApproveOrderHashIsPerAccount(t *testing.T) {
	f := newFixture(t)
	hash := common.HexToHash("0xabcdef")

	if _, err := f.exchange.ApproveOrderHash(f.ctx, f.bob.Maker(), hash); err != nil {
		t.Fatalf("approve hash: %v", err)
	}
	if f.authorized(t, operator, hash, f.alice.Maker(), nil) {
		t.Fatalf("expected bob's approval to say nothing about alice")
	}
	if !f.authorized(t, operator, hash, f.bob.Maker(), nil) {
		t.Fatalf("expected bob's approval to authorize bob")
	}
}

func TestApprovedOrdersMatchWithoutSignatures(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped)
	second := f.order(t, f.bob, static.SelectorAny, chain.SignatureTyped)
	if _, err := f.exchange.ApproveOrder(f.ctx, f.alice.Maker(), first.Order, false); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if _, err := f.exchange.ApproveOrderHash(f.ctx, f.bob.Maker(), second.Order.Hash()); err != nil {
		t.Fatalf("approve second: %v", err)
	}

	m := f.swap(t, first, second)
	m.FirstSignature, m.SecondSignature = nil, nil
	if _, err := f.exchange.AtomicMatch(f.ctx, operator, m); err != nil {
		t.Fatalf("atomic match: %v", err)
	}
	if f.balance(t, f.tokenA, f.bob.Maker()) != 10 {
		t.Fatalf("expected settlement")
	}
}

func TestSetOrderFill(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, f.alice, static.SelectorAny, chain.SignatureTyped).Order
	hash := order.Hash()

	if f.authorized(t, operator, hash, f.alice.Maker(), nil) {
		t.Fatalf("expected unsigned order to be unauthorized")
	}

	receipt, err := f.exchange.SetOrderFill(f.ctx, f.alice.Maker(), hash, big.NewInt(1))
	if err != nil {
		t.Fatalf("set order fill: %v", err)
	}
	ev := receipt.Events[0].Data.(exchange.OrderFillChangedEvent)
	if ev.Hash != hash || ev.Maker != f.alice.Maker() || ev.NewFill.Int64() != 1 {
		t.Fatalf("unexpected OrderFillChanged payload: %+v", ev)
	}
	if !f.authorized(t, operator, hash, f.alice.Maker(), nil) {
		t.Fatalf("expected nonzero fill to authorize")
	}

	if _, err := f.exchange.SetOrderFill(f.ctx, f.alice.Maker(), hash, big.NewInt(1)); !errors.Is(err, exchange.ErrFillUnchanged) {
		t.Fatalf("expected ErrFillUnchanged, got %v", err)
	}
	if fill := f.fill(t, order); fill != 1 {
		t.Fatalf("expected fill 1, got %d", fill)
	}

	// another account's record is separate
	if _, err := f.exchange.SetOrderFill(f.ctx, f.bob.Maker(), hash, big.NewInt(1)); err != nil {
		t.Fatalf("set bob's fill: %v", err)
	}
}
