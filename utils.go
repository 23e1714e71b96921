package wyvern

import (
	"math/big"
	"strings"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	MaxDecimals = 18
	ZeroAddress = "0x0000000000000000000000000000000000000000"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TokenAmount converts a human-readable decimal amount to base units.
// Digits past decimals are truncated.
func TokenAmount(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, invalidParam("decimals must be between 0 and %d, got: %d", MaxDecimals, decimals)
	}

	parts := strings.Split(strings.TrimSpace(amount), ".")
	if len(parts) > 2 || parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return nil, invalidParam("invalid amount format: %q", amount)
	}
	integerPart := parts[0]
	decimalPart := ""
	if len(parts) == 2 {
		decimalPart = parts[1]
	}
	if !isDigits(integerPart) || !isDigits(decimalPart) {
		return nil, invalidParam("invalid amount format: %q", amount)
	}

	if len(decimalPart) > decimals {
		decimalPart = decimalPart[:decimals]
	} else {
		decimalPart += strings.Repeat("0", decimals-len(decimalPart))
	}

	result, ok := new(big.Int).SetString(integerPart+decimalPart, 10)
	if !ok {
		return nil, invalidParam("failed to convert amount: %q", amount)
	}
	if result.Cmp(maxUint256) > 0 {
		return nil, invalidParam("amount too large for uint256: %s", result.String())
	}
	if result.Sign() <= 0 {
		return nil, invalidParam("amount must be positive, got: %q", amount)
	}
	return result, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseAddress parses a required 0x address
func ParseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, invalidParam("%s is required", field)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, invalidParam("%s must be a hex address, got: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// ParseUint256 parses a decimal or 0x hex integer. Empty means zero.
func ParseUint256(field, s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}

	var (
		v  *big.Int
		ok bool
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		v, ok = new(big.Int).SetString(s, 10)
	}
	if !ok || v.Sign() < 0 {
		return nil, invalidParam("%s must be an unsigned integer, got: %q", field, s)
	}
	if v.Cmp(maxUint256) > 0 {
		return nil, invalidParam("%s too large for uint256", field)
	}
	return v, nil
}

// ParseBytes parses 0x hex bytes. Empty and "0x" mean no bytes.
func ParseBytes(field, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, invalidParam("%s must be 0x hex: %v", field, err)
	}
	return b, nil
}

// ParseHash parses a 32-byte 0x hash
func ParseHash(field, s string) (common.Hash, error) {
	b, err := ParseBytes(field, s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, invalidParam("%s must be %d bytes, got %d", field, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// ParseSelector parses a 4-byte 0x function selector
func ParseSelector(field, s string) ([4]byte, error) {
	var sel [4]byte
	b, err := ParseBytes(field, s)
	if err != nil {
		return sel, err
	}
	if len(b) != 4 {
		return sel, invalidParam("%s must be 4 bytes, got %d", field, len(b))
	}
	copy(sel[:], b)
	return sel, nil
}

// OrderFromJSON converts and checks a wire order
func OrderFromJSON(j OrderJSON) (*chain.Order, error) {
	var (
		o   chain.Order
		err error
	)
	if o.Registry, err = ParseAddress("registry", j.Registry); err != nil {
		return nil, err
	}
	if o.Maker, err = ParseAddress("maker", j.Maker); err != nil {
		return nil, err
	}
	if o.StaticTarget, err = ParseAddress("staticTarget", j.StaticTarget); err != nil {
		return nil, err
	}
	if o.StaticSelector, err = ParseSelector("staticSelector", j.StaticSelector); err != nil {
		return nil, err
	}
	if o.StaticExtradata, err = ParseBytes("staticExtradata", j.StaticExtradata); err != nil {
		return nil, err
	}
	if o.MaximumFill, err = ParseUint256("maximumFill", j.MaximumFill); err != nil {
		return nil, err
	}
	if o.ListingTime, err = ParseUint256("listingTime", j.ListingTime); err != nil {
		return nil, err
	}
	if o.ExpirationTime, err = ParseUint256("expirationTime", j.ExpirationTime); err != nil {
		return nil, err
	}
	if o.Salt, err = ParseUint256("salt", j.Salt); err != nil {
		return nil, err
	}
	return &o, nil
}

// OrderToJSON converts an order to its wire form
func OrderToJSON(o *chain.Order) OrderJSON {
	return OrderJSON{
		Registry:        o.Registry.Hex(),
		Maker:           o.Maker.Hex(),
		StaticTarget:    o.StaticTarget.Hex(),
		StaticSelector:  hexutil.Encode(o.StaticSelector[:]),
		StaticExtradata: hexutil.Encode(o.StaticExtradata),
		MaximumFill:     bigString(o.MaximumFill),
		ListingTime:     bigString(o.ListingTime),
		ExpirationTime:  bigString(o.ExpirationTime),
		Salt:            bigString(o.Salt),
	}
}

// CallFromJSON converts and checks a wire call
func CallFromJSON(field string, j CallJSON) (chain.Call, error) {
	target, err := ParseAddress(field+".target", j.Target)
	if err != nil {
		return chain.Call{}, err
	}
	how := chain.HowToCall(j.HowToCall)
	if !how.Valid() {
		return chain.Call{}, invalidParam("%s.howToCall must be 0 (call) or 1 (delegatecall), got %d", field, j.HowToCall)
	}
	data, err := ParseBytes(field+".data", j.Data)
	if err != nil {
		return chain.Call{}, err
	}
	return chain.Call{Target: target, HowToCall: how, Data: data}, nil
}

// CallToJSON converts a call to its wire form
func CallToJSON(c chain.Call) CallJSON {
	return CallJSON{
		Target:    c.Target.Hex(),
		HowToCall: uint8(c.HowToCall),
		Data:      hexutil.Encode(c.Data),
	}
}

// MatchFromRequest converts and checks both sides of a wire match
func MatchFromRequest(r MatchRequest) (*exchange.Match, error) {
	first, err := OrderFromJSON(r.First)
	if err != nil {
		return nil, prefixParam("first", err)
	}
	second, err := OrderFromJSON(r.Second)
	if err != nil {
		return nil, prefixParam("second", err)
	}
	firstCall, err := CallFromJSON("firstCall", r.FirstCall)
	if err != nil {
		return nil, err
	}
	secondCall, err := CallFromJSON("secondCall", r.SecondCall)
	if err != nil {
		return nil, err
	}
	firstSig, err := ParseBytes("firstSignature", r.FirstSignature)
	if err != nil {
		return nil, err
	}
	secondSig, err := ParseBytes("secondSignature", r.SecondSignature)
	if err != nil {
		return nil, err
	}

	var metadata common.Hash
	if strings.TrimSpace(r.Metadata) != "" {
		if metadata, err = ParseHash("metadata", r.Metadata); err != nil {
			return nil, err
		}
	}

	return &exchange.Match{
		First:           first,
		FirstCall:       firstCall,
		FirstSignature:  firstSig,
		Second:          second,
		SecondCall:      secondCall,
		SecondSignature: secondSig,
		Metadata:        metadata,
	}, nil
}

// MatchToRequest converts a match to its wire form
func MatchToRequest(m *exchange.Match) MatchRequest {
	return MatchRequest{
		First:           OrderToJSON(m.First),
		FirstCall:       CallToJSON(m.FirstCall),
		FirstSignature:  hexutil.Encode(m.FirstSignature),
		Second:          OrderToJSON(m.Second),
		SecondCall:      CallToJSON(m.SecondCall),
		SecondSignature: hexutil.Encode(m.SecondSignature),
		Metadata:        m.Metadata.Hex(),
	}
}

func prefixParam(side string, err error) error {
	if p, ok := err.(*InvalidParamError); ok {
		return &InvalidParamError{Message: side + "." + p.Message}
	}
	return err
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
