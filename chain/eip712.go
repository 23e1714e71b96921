package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Order field errors
var (
	ErrInvalidMaximumFill  = errors.New("invalid maximum fill")
	ErrInvalidSalt         = errors.New("invalid order salt")
	ErrInvalidTimestamp    = errors.New("invalid order timestamp")
	ErrMissingStaticTarget = errors.New("static target is required")
)

// EIP712 domain constants of the exchange
const (
	EIP712DomainName    = "Wyvern Exchange"
	EIP712DomainVersion = "3.1"
)

// DefaultPersonalSignPrefix is the prefix of prefixed-message signatures
const DefaultPersonalSignPrefix = "\x19Ethereum Signed Message:\n"

// Pre-computed type hashes using keccak256
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	OrderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(address registry,address maker,address staticTarget,bytes4 staticSelector,bytes staticExtradata,uint256 maximumFill,uint256 listingTime,uint256 expirationTime,uint256 salt)",
	))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	bytes4Type, _  = abi.NewType("bytes4", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)

	domainArguments = abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // nameHash
		{Type: bytes32Type}, // versionHash
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	orderArguments = abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: addressType}, // registry
		{Type: addressType}, // maker
		{Type: addressType}, // staticTarget
		{Type: bytes4Type},  // staticSelector
		{Type: bytes32Type}, // keccak256(staticExtradata)
		{Type: uint256Type}, // maximumFill
		{Type: uint256Type}, // listingTime
		{Type: uint256Type}, // expirationTime
		{Type: uint256Type}, // salt
	}
)

// EIP712Domain represents the EIP712 domain separator data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewEIP712Domain creates the exchange domain for a chain and exchange address
func NewEIP712Domain(chainID *big.Int, verifyingContract common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// Hash computes the EIP712 domain separator hash
func (d *EIP712Domain) Hash() common.Hash {
	encoded, err := domainArguments.Pack(
		EIP712DomainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		orZero(d.ChainID),
		d.VerifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}
	return crypto.Keccak256Hash(encoded)
}

// Hash computes the order hash. It depends on every field and on nothing else.
func (o *Order) Hash() common.Hash {
	encoded, err := orderArguments.Pack(
		OrderTypeHash,
		o.Registry,
		o.Maker,
		o.StaticTarget,
		o.StaticSelector,
		crypto.Keccak256Hash(o.StaticExtradata),
		orZero(o.MaximumFill),
		orZero(o.ListingTime),
		orZero(o.ExpirationTime),
		orZero(o.Salt),
	)
	if err != nil {
		panic("failed to encode order struct: " + err.Error())
	}
	return crypto.Keccak256Hash(encoded)
}

// Validate checks the fields a well-formed order needs before it is signed
func (o *Order) Validate() error {
	if o.StaticTarget == (common.Address{}) {
		return ErrMissingStaticTarget
	}
	if o.MaximumFill == nil || o.MaximumFill.Sign() <= 0 {
		return ErrInvalidMaximumFill
	}
	if o.Salt == nil || o.Salt.Sign() < 0 {
		return ErrInvalidSalt
	}
	if o.ListingTime != nil && o.ListingTime.Sign() < 0 {
		return ErrInvalidTimestamp
	}
	if o.ExpirationTime != nil && o.ExpirationTime.Sign() < 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// HashToSign wraps an order hash with the domain separator:
// keccak256("\x19\x01" ++ domainSeparator ++ orderHash)
func HashToSign(domainSeparator, orderHash common.Hash) common.Hash {
	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, domainSeparator.Bytes()...)
	data = append(data, orderHash.Bytes()...)
	return crypto.Keccak256Hash(data)
}

// PersonalMessageHash is the digest of a prefixed-message signature over a 32-byte hash
func PersonalMessageHash(prefix string, hash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte(prefix), []byte("32"), hash.Bytes())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
