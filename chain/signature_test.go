package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func newTestBuilder(t *testing.T) *OrderBuilder {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	ob, err := NewOrderBuilder(testExchange, big.NewInt(50), key)
	if err != nil {
		t.Fatalf("new order builder: %v", err)
	}
	return ob
}

func testOrderData() *OrderData {
	return &OrderData{
		Registry:       testRegistry,
		StaticTarget:   testStatic,
		StaticSelector: PredicateSelector("any"),
		MaximumFill:    big.NewInt(1),
	}
}

func TestSignatureKindsRecoverMaker(t *testing.T) {
	ob := newTestBuilder(t)

	tests := []struct {
		name    string
		kind    SignatureKind
		wantLen int
	}{
		{"typed", SignatureTyped, 96},
		{"personal", SignaturePersonal, 97},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := ob.BuildSignedOrder(testOrderData(), tt.kind)
			if err != nil {
				t.Fatalf("build signed order: %v", err)
			}
			if len(signed.Signature) != tt.wantLen {
				t.Fatalf("expected %d byte blob, got %d", tt.wantLen, len(signed.Signature))
			}

			sig, err := DecodeSignature(signed.Signature)
			if err != nil {
				t.Fatalf("decode signature: %v", err)
			}
			if sig.Kind != tt.kind {
				t.Fatalf("expected kind %d, got %d", tt.kind, sig.Kind)
			}
			if sig.V != 27 && sig.V != 28 {
				t.Fatalf("expected v in {27, 28}, got %d", sig.V)
			}

			hashToSign := HashToSign(ob.DomainSeparator(), signed.Order.Hash())
			signer, err := sig.Recover(sig.Digest(hashToSign, DefaultPersonalSignPrefix))
			if err != nil {
				t.Fatalf("recover: %v", err)
			}
			if signer != ob.Maker() {
				t.Fatalf("expected signer %s, got %s", ob.Maker().Hex(), signer.Hex())
			}
		})
	}
}

func TestPersonalSignatureDoesNotVerifyAsTyped(t *testing.T) {
	ob := newTestBuilder(t)
	signed, err := ob.BuildSignedOrder(testOrderData(), SignaturePersonal)
	if err != nil {
		t.Fatalf("build signed order: %v", err)
	}
	sig, err := DecodeSignature(signed.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	sig.Kind = SignatureTyped
	hashToSign := HashToSign(ob.DomainSeparator(), signed.Order.Hash())
	signer, err := sig.Recover(sig.Digest(hashToSign, DefaultPersonalSignPrefix))
	if err == nil && signer == ob.Maker() {
		t.Fatalf("expected prefixed signature to fail typed recovery")
	}
}

func TestPersonalPrefixIsPartOfDigest(t *testing.T) {
	ob := newTestBuilder(t).WithPersonalPrefix("\x19Other Chain Signed Message:\n")
	signed, err := ob.BuildSignedOrder(testOrderData(), SignaturePersonal)
	if err != nil {
		t.Fatalf("build signed order: %v", err)
	}
	sig, err := DecodeSignature(signed.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	hashToSign := HashToSign(ob.DomainSeparator(), signed.Order.Hash())
	signer, err := sig.Recover(sig.Digest(hashToSign, DefaultPersonalSignPrefix))
	if err == nil && signer == ob.Maker() {
		t.Fatalf("expected default prefix to reject a custom-prefix signature")
	}
}

func TestDecodeSignatureRejectsShortBlob(t *testing.T) {
	if _, err := DecodeSignature(make([]byte, 65)); !errors.Is(err, ErrSignatureLength) {
		t.Fatalf("expected ErrSignatureLength, got %v", err)
	}
	if _, err := EncodeSignature(make([]byte, 64), SignatureTyped); !errors.Is(err, ErrSignatureLength) {
		t.Fatalf("expected ErrSignatureLength, got %v", err)
	}
}

func TestRecoverRejectsBadRecoveryID(t *testing.T) {
	sig := &Signature{V: 30}
	if _, err := sig.Recover(sampleOrder().Hash()); !errors.Is(err, ErrInvalidRecoveryID) {
		t.Fatalf("expected ErrInvalidRecoveryID, got %v", err)
	}
}

func TestSignRejectsForeignOrder(t *testing.T) {
	ob := newTestBuilder(t)
	if _, err := ob.Sign(sampleOrder(), SignatureTyped); err == nil {
		t.Fatalf("expected error signing an order with another maker")
	}
}

func TestBuildOrderDefaults(t *testing.T) {
	ob := newTestBuilder(t)
	order, err := ob.BuildOrder(testOrderData())
	if err != nil {
		t.Fatalf("build order: %v", err)
	}
	if order.Maker != ob.Maker() {
		t.Fatalf("expected maker to be the signer")
	}
	if order.Salt == nil || order.ListingTime.Sign() != 0 || order.ExpirationTime.Sign() != 0 {
		t.Fatalf("expected salt and zero times, got %+v", order)
	}
	if order.StaticExtradata == nil {
		t.Fatalf("expected non-nil extradata")
	}
}
