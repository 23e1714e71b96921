package exchange

import (
	"fmt"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/ethereum/go-ethereum/common"
)

// Match is everything atomicMatch needs to settle two orders
type Match struct {
	First           *chain.Order
	FirstCall       chain.Call
	FirstSignature  []byte
	Second          *chain.Order
	SecondCall      chain.Call
	SecondSignature []byte
	Metadata        common.Hash
}

// Pack encodes m as atomicMatch_ calldata
func (m *Match) Pack() ([]byte, error) {
	if m.First == nil || m.Second == nil {
		return nil, fmt.Errorf("match needs two orders")
	}
	uints := [16]*big.Int{
		addressToBig(m.First.Registry),
		addressToBig(m.First.Maker),
		addressToBig(m.First.StaticTarget),
		orZero(m.First.MaximumFill),
		orZero(m.First.ListingTime),
		orZero(m.First.ExpirationTime),
		orZero(m.First.Salt),
		addressToBig(m.FirstCall.Target),
		addressToBig(m.Second.Registry),
		addressToBig(m.Second.Maker),
		addressToBig(m.Second.StaticTarget),
		orZero(m.Second.MaximumFill),
		orZero(m.Second.ListingTime),
		orZero(m.Second.ExpirationTime),
		orZero(m.Second.Salt),
		addressToBig(m.SecondCall.Target),
	}
	selectors := [2][4]byte{m.First.StaticSelector, m.Second.StaticSelector}
	howToCalls := [2]uint8{uint8(m.FirstCall.HowToCall), uint8(m.SecondCall.HowToCall)}

	signatures, err := chain.PackSignatures(m.FirstSignature, m.SecondSignature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack signatures: %w", err)
	}
	return chain.ExchangeABI.Pack("atomicMatch_",
		uints,
		selectors,
		nonNil(m.First.StaticExtradata),
		nonNil(m.FirstCall.Data),
		nonNil(m.Second.StaticExtradata),
		nonNil(m.SecondCall.Data),
		howToCalls,
		[32]byte(m.Metadata),
		signatures,
	)
}

func matchFromArgs(args []interface{}) (*Match, error) {
	uints := args[0].([16]*big.Int)
	selectors := args[1].([2][4]byte)
	howToCalls := args[6].([2]uint8)

	m := &Match{
		First: &chain.Order{
			Registry:        common.BigToAddress(uints[0]),
			Maker:           common.BigToAddress(uints[1]),
			StaticTarget:    common.BigToAddress(uints[2]),
			StaticSelector:  selectors[0],
			StaticExtradata: args[2].([]byte),
			MaximumFill:     uints[3],
			ListingTime:     uints[4],
			ExpirationTime:  uints[5],
			Salt:            uints[6],
		},
		FirstCall: chain.Call{
			Target:    common.BigToAddress(uints[7]),
			HowToCall: chain.HowToCall(howToCalls[0]),
			Data:      args[3].([]byte),
		},
		Second: &chain.Order{
			Registry:        common.BigToAddress(uints[8]),
			Maker:           common.BigToAddress(uints[9]),
			StaticTarget:    common.BigToAddress(uints[10]),
			StaticSelector:  selectors[1],
			StaticExtradata: args[4].([]byte),
			MaximumFill:     uints[11],
			ListingTime:     uints[12],
			ExpirationTime:  uints[13],
			Salt:            uints[14],
		},
		SecondCall: chain.Call{
			Target:    common.BigToAddress(uints[15]),
			HowToCall: chain.HowToCall(howToCalls[1]),
			Data:      args[5].([]byte),
		},
		Metadata: common.Hash(args[7].([32]byte)),
	}

	// Makers that are the sender or pre-approved may submit no signatures at all.
	if signatures := args[8].([]byte); len(signatures) > 0 {
		first, second, err := chain.UnpackSignatures(signatures)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignatures, err)
		}
		m.FirstSignature, m.SecondSignature = first, second
	}
	return m, nil
}

// orderArgs lists order fields in the exchange ABI's argument order
func orderArgs(o *chain.Order) []interface{} {
	return []interface{}{
		o.Registry,
		o.Maker,
		o.StaticTarget,
		o.StaticSelector,
		nonNil(o.StaticExtradata),
		orZero(o.MaximumFill),
		orZero(o.ListingTime),
		orZero(o.ExpirationTime),
		orZero(o.Salt),
	}
}

func orderFromArgs(args []interface{}) *chain.Order {
	return &chain.Order{
		Registry:        args[0].(common.Address),
		Maker:           args[1].(common.Address),
		StaticTarget:    args[2].(common.Address),
		StaticSelector:  args[3].([4]byte),
		StaticExtradata: args[4].([]byte),
		MaximumFill:     args[5].(*big.Int),
		ListingTime:     args[6].(*big.Int),
		ExpirationTime:  args[7].(*big.Int),
		Salt:            args[8].(*big.Int),
	}
}

func addressToBig(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
