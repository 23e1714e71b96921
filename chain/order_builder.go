package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// maxSaltAttempts bounds re-salting when a typed signature would be misread
const maxSaltAttempts = 16

// OrderData represents the data for building an order
type OrderData struct {
	Registry        common.Address
	StaticTarget    common.Address
	StaticSelector  [4]byte
	StaticExtradata []byte
	MaximumFill     *big.Int
	ListingTime     *big.Int
	ExpirationTime  *big.Int
	Salt            *big.Int
}

// OrderBuilder builds and signs orders for one maker
type OrderBuilder struct {
	domain         *EIP712Domain
	personalPrefix string
	signer         *ecdsa.PrivateKey
	maker          common.Address
}

// NewOrderBuilder creates a new OrderBuilder
func NewOrderBuilder(exchangeAddr common.Address, chainID *big.Int, signer *ecdsa.PrivateKey) (*OrderBuilder, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	return &OrderBuilder{
		domain:         NewEIP712Domain(chainID, exchangeAddr),
		personalPrefix: DefaultPersonalSignPrefix,
		signer:         signer,
		maker:          crypto.PubkeyToAddress(signer.PublicKey),
	}, nil
}

// WithPersonalPrefix overrides the prefix used for prefixed-message signatures
func (ob *OrderBuilder) WithPersonalPrefix(prefix string) *OrderBuilder {
	ob.personalPrefix = prefix
	return ob
}

// Maker returns the address orders are built for
func (ob *OrderBuilder) Maker() common.Address {
	return ob.maker
}

// DomainSeparator returns the domain separator signatures are bound to
func (ob *OrderBuilder) DomainSeparator() common.Hash {
	return ob.domain.Hash()
}

// BuildOrder builds an order from OrderData
func (ob *OrderBuilder) BuildOrder(data *OrderData) (*Order, error) {
	salt := data.Salt
	if salt == nil {
		salt = generateSalt()
	}

	order := &Order{
		Registry:        data.Registry,
		Maker:           ob.maker,
		StaticTarget:    data.StaticTarget,
		StaticSelector:  data.StaticSelector,
		StaticExtradata: nonNil(data.StaticExtradata),
		MaximumFill:     data.MaximumFill,
		ListingTime:     orZero(data.ListingTime),
		ExpirationTime:  orZero(data.ExpirationTime),
		Salt:            salt,
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// BuildSignedOrder builds an order and signs it. Typed signatures that would be
// read as prefixed ones are avoided by re-salting, unless the caller fixed the salt.
func (ob *OrderBuilder) BuildSignedOrder(data *OrderData, kind SignatureKind) (*SignedOrder, error) {
	for attempt := 0; attempt < maxSaltAttempts; attempt++ {
		order, err := ob.BuildOrder(data)
		if err != nil {
			return nil, err
		}

		signature, err := ob.Sign(order, kind)
		if err != nil {
			return nil, err
		}
		if kind == SignatureTyped && IsAmbiguous(signature) && data.Salt == nil {
			continue
		}

		return &SignedOrder{
			Order:     order,
			Signature: signature,
		}, nil
	}
	return nil, fmt.Errorf("failed to produce an unambiguous signature after %d attempts", maxSaltAttempts)
}

// Sign signs an order and returns the exchange signature blob
func (ob *OrderBuilder) Sign(order *Order, kind SignatureKind) ([]byte, error) {
	if order.Maker != ob.maker {
		return nil, fmt.Errorf("order maker %s does not match signer %s", order.Maker.Hex(), ob.maker.Hex())
	}
	hashToSign := HashToSign(ob.domain.Hash(), order.Hash())

	digest := hashToSign
	if kind == SignaturePersonal {
		digest = PersonalMessageHash(ob.personalPrefix, hashToSign)
	}

	sig, err := crypto.Sign(digest.Bytes(), ob.signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	return EncodeSignature(sig, kind)
}

func generateSalt() *big.Int {
	now := time.Now().UnixNano()
	random := rand.Int63()
	return new(big.Int).Mul(big.NewInt(now), big.NewInt(random))
}
