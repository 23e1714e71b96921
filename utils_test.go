package wyvern

import (
	"errors"
	"math/big"
	"testing"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/ethereum/go-ethereum/common"
)

func TestTokenAmount(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"2.123456789", 6, "2123456"},
		{".5", 1, "5"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		got, err := TokenAmount(tc.amount, tc.decimals)
		if err != nil {
			t.Fatalf("TokenAmount(%q, %d): %v", tc.amount, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("TokenAmount(%q, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestTokenAmountRejects(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
	}{
		{"", 6},
		{"abc", 6},
		{"1.2.3", 6},
		{"-1", 6},
		{"0", 6},
		{"0.0000001", 6},
		{"1", 19},
		{"1", -1},
	}
	for _, tc := range cases {
		if _, err := TokenAmount(tc.amount, tc.decimals); !errors.Is(err, ErrInvalidParam) {
			t.Fatalf("TokenAmount(%q, %d): expected ErrInvalidParam, got %v", tc.amount, tc.decimals, err)
		}
	}
}

func TestParseUint256(t *testing.T) {
	v, err := ParseUint256("salt", "0xff")
	if err != nil || v.Int64() != 255 {
		t.Fatalf("hex parse: %v %v", v, err)
	}
	v, err = ParseUint256("salt", " 12 ")
	if err != nil || v.Int64() != 12 {
		t.Fatalf("decimal parse: %v %v", v, err)
	}
	v, err = ParseUint256("salt", "")
	if err != nil || v.Sign() != 0 {
		t.Fatalf("empty parse: %v %v", v, err)
	}

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256).String()
	if _, err := ParseUint256("salt", tooBig); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}

	_, err = ParseUint256("salt", "nope")
	var paramErr *InvalidParamError
	if !errors.As(err, &paramErr) {
		t.Fatalf("expected InvalidParamError, got %v", err)
	}
	if paramErr.Message == "" {
		t.Fatal("expected message naming the field")
	}
}

func TestParseHashAndSelector(t *testing.T) {
	if _, err := ParseHash("hash", "0x1234"); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected short hash rejection, got %v", err)
	}
	h, err := ParseHash("hash", common.Hash{9}.Hex())
	if err != nil || h != (common.Hash{9}) {
		t.Fatalf("parse hash: %v %v", h, err)
	}

	sel, err := ParseSelector("sel", "0xdeadbeef")
	if err != nil || sel != [4]byte{0xde, 0xad, 0xbe, 0xef} {
		t.Fatalf("parse selector: %x %v", sel, err)
	}
	if _, err := ParseSelector("sel", "0xdead"); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected short selector rejection, got %v", err)
	}
	if b, err := ParseBytes("data", "0x"); err != nil || len(b) != 0 {
		t.Fatalf("empty bytes: %v %v", b, err)
	}
}

func TestMatchFromRequestPrefixesSide(t *testing.T) {
	order := &chain.Order{
		Registry:       common.HexToAddress("0x01"),
		Maker:          common.HexToAddress("0x02"),
		StaticTarget:   common.HexToAddress("0x03"),
		MaximumFill:    big.NewInt(1),
		ListingTime:    big.NewInt(0),
		ExpirationTime: big.NewInt(0),
		Salt:           big.NewInt(5),
	}
	m := &exchange.Match{
		First:      order,
		FirstCall:  chain.Call{Target: common.HexToAddress("0x04"), Data: []byte{1}},
		Second:     order,
		SecondCall: chain.Call{Target: common.HexToAddress("0x05"), HowToCall: chain.HowToCallDelegateCall},
		Metadata:   common.Hash{7},
	}

	req := MatchToRequest(m)
	back, err := MatchFromRequest(req)
	if err != nil {
		t.Fatalf("match from request: %v", err)
	}
	if back.First.Hash() != order.Hash() || back.SecondCall.HowToCall != chain.HowToCallDelegateCall {
		t.Fatalf("match did not survive the wire form")
	}

	req.Second.Maker = "bogus"
	_, err = MatchFromRequest(req)
	var paramErr *InvalidParamError
	if !errors.As(err, &paramErr) {
		t.Fatalf("expected InvalidParamError, got %v", err)
	}
	if paramErr.Message[:7] != "second." {
		t.Fatalf("expected second-side prefix, got %q", paramErr.Message)
	}

	req = MatchToRequest(m)
	req.FirstCall.HowToCall = 2
	if _, err := MatchFromRequest(req); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected howToCall rejection, got %v", err)
	}
}

func TestChainIDSupport(t *testing.T) {
	for _, id := range SupportedChainIDs {
		if !id.IsSupported() {
			t.Fatalf("chain %d should be supported", id)
		}
		if DefaultChainSettings[id].PersonalSignPrefix == "" {
			t.Fatalf("chain %d has no personal sign prefix", id)
		}
	}
	if ChainID(999).IsSupported() {
		t.Fatal("chain 999 should not be supported")
	}
}

func TestAPIErrorUnwraps(t *testing.T) {
	err := error(&APIError{StatusCode: 422, Code: "ORDER_FILLED", Message: "order is already completely filled"})
	if !errors.Is(err, ErrAPI) {
		t.Fatal("expected APIError to unwrap to ErrAPI")
	}
	if err.Error() != "HTTP 422: ORDER_FILLED: order is already completely filled" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
