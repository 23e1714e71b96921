package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StaticSignature is the argument list every predicate method accepts
const StaticSignature = "(bytes,address[7],uint8[2],uint256[7],bytes,bytes)"

var (
	addressArray7Type, _ = abi.NewType("address[7]", "", nil)
	uint8Array2Type, _   = abi.NewType("uint8[2]", "", nil)
	uint256Array7Type, _ = abi.NewType("uint256[7]", "", nil)

	staticArguments = abi.Arguments{
		{Type: bytesType},         // extradata
		{Type: addressArray7Type}, // addresses
		{Type: uint8Array2Type},   // howToCalls
		{Type: uint256Array7Type}, // uints
		{Type: bytesType},         // calldata
		{Type: bytesType},         // counter calldata
	}

	fillArguments = abi.Arguments{{Type: uint256Type}}
)

// StaticArgs is what a predicate sees when judging one side of a match
type StaticArgs struct {
	Extradata []byte

	Registry        common.Address
	Maker           common.Address
	Target          common.Address
	CounterRegistry common.Address
	CounterMaker    common.Address
	CounterTarget   common.Address
	Matcher         common.Address

	HowToCall        HowToCall
	CounterHowToCall HowToCall

	Value              *big.Int
	MaximumFill        *big.Int
	ListingTime        *big.Int
	ExpirationTime     *big.Int
	CounterListingTime *big.Int
	Fill               *big.Int
	CounterFill        *big.Int

	Calldata        []byte
	CounterCalldata []byte
}

// NewStaticArgs assembles the predicate input for order judged against counter
func NewStaticArgs(order *Order, call *Call, counter *Order, counterCall *Call, matcher common.Address, fill, counterFill *big.Int) *StaticArgs {
	return &StaticArgs{
		Extradata:          order.StaticExtradata,
		Registry:           order.Registry,
		Maker:              order.Maker,
		Target:             call.Target,
		CounterRegistry:    counter.Registry,
		CounterMaker:       counter.Maker,
		CounterTarget:      counterCall.Target,
		Matcher:            matcher,
		HowToCall:          call.HowToCall,
		CounterHowToCall:   counterCall.HowToCall,
		Value:              new(big.Int),
		MaximumFill:        orZero(order.MaximumFill),
		ListingTime:        orZero(order.ListingTime),
		ExpirationTime:     orZero(order.ExpirationTime),
		CounterListingTime: orZero(counter.ListingTime),
		Fill:               orZero(fill),
		CounterFill:        orZero(counterFill),
		Calldata:           call.Data,
		CounterCalldata:    counterCall.Data,
	}
}

// PredicateSelector returns the selector of a predicate method named name
func PredicateSelector(name string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(name + StaticSignature))[:4])
	return sel
}

// PackStaticCall encodes a predicate invocation: selector ++ abi.encode(args)
func PackStaticCall(selector [4]byte, a *StaticArgs) ([]byte, error) {
	addresses := [7]common.Address{
		a.Registry, a.Maker, a.Target,
		a.CounterRegistry, a.CounterMaker, a.CounterTarget,
		a.Matcher,
	}
	howToCalls := [2]uint8{uint8(a.HowToCall), uint8(a.CounterHowToCall)}
	uints := [7]*big.Int{
		orZero(a.Value), orZero(a.MaximumFill), orZero(a.ListingTime), orZero(a.ExpirationTime),
		orZero(a.CounterListingTime), orZero(a.Fill), orZero(a.CounterFill),
	}

	encoded, err := staticArguments.Pack(nonNil(a.Extradata), addresses, howToCalls, uints, nonNil(a.Calldata), nonNil(a.CounterCalldata))
	if err != nil {
		return nil, fmt.Errorf("encode static call: %w", err)
	}
	return append(selector[:], encoded...), nil
}

// UnpackStaticCall decodes a predicate invocation
func UnpackStaticCall(input []byte) ([4]byte, *StaticArgs, error) {
	var selector [4]byte
	if len(input) < 4 {
		return selector, nil, fmt.Errorf("static call too short: %d bytes", len(input))
	}
	copy(selector[:], input[:4])

	values, err := staticArguments.Unpack(input[4:])
	if err != nil {
		return selector, nil, fmt.Errorf("decode static call: %w", err)
	}
	addresses := values[1].([7]common.Address)
	howToCalls := values[2].([2]uint8)
	uints := values[3].([7]*big.Int)

	return selector, &StaticArgs{
		Extradata:          values[0].([]byte),
		Registry:           addresses[0],
		Maker:              addresses[1],
		Target:             addresses[2],
		CounterRegistry:    addresses[3],
		CounterMaker:       addresses[4],
		CounterTarget:      addresses[5],
		Matcher:            addresses[6],
		HowToCall:          HowToCall(howToCalls[0]),
		CounterHowToCall:   HowToCall(howToCalls[1]),
		Value:              uints[0],
		MaximumFill:        uints[1],
		ListingTime:        uints[2],
		ExpirationTime:     uints[3],
		CounterListingTime: uints[4],
		Fill:               uints[5],
		CounterFill:        uints[6],
		Calldata:           values[4].([]byte),
		CounterCalldata:    values[5].([]byte),
	}, nil
}

// PackFill encodes a predicate's return value
func PackFill(fill *big.Int) ([]byte, error) {
	return fillArguments.Pack(orZero(fill))
}

// UnpackFill decodes a predicate's return value
func UnpackFill(data []byte) (*big.Int, error) {
	values, err := fillArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode fill: %w", err)
	}
	return values[0].(*big.Int), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
