package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// HowToCall selects how a proxy forwards a call
type HowToCall uint8

const (
	// HowToCallCall runs the target in its own context
	HowToCallCall HowToCall = iota
	// HowToCallDelegateCall runs the target's code in the proxy's context
	HowToCallDelegateCall
)

// Valid reports whether h names a known call mode
func (h HowToCall) Valid() bool {
	return h == HowToCallCall || h == HowToCallDelegateCall
}

func (h HowToCall) String() string {
	switch h {
	case HowToCallCall:
		return "call"
	case HowToCallDelegateCall:
		return "delegatecall"
	default:
		return "unknown"
	}
}

// Call is an action a maker's proxy performs when an order settles
type Call struct {
	Target    common.Address
	HowToCall HowToCall
	Data      []byte
}

// Order is the canonical order record. Maker signs its hash.
type Order struct {
	Registry        common.Address
	Maker           common.Address
	StaticTarget    common.Address
	StaticSelector  [4]byte
	StaticExtradata []byte
	MaximumFill     *big.Int
	ListingTime     *big.Int
	ExpirationTime  *big.Int
	Salt            *big.Int
}

// SignedOrder pairs an order with its signature blob
type SignedOrder struct {
	Order     *Order
	Signature []byte
}

// ERC1271MagicValue is returned by contract makers that accept a signature
var ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

const registryABIJSON = `[
	{"type": "function", "name": "registerProxy", "stateMutability": "nonpayable",
		"inputs": [], "outputs": [{"name": "proxy", "type": "address"}]},
	{"type": "function", "name": "registerProxyFor", "stateMutability": "nonpayable",
		"inputs": [{"name": "user", "type": "address"}], "outputs": [{"name": "proxy", "type": "address"}]},
	{"type": "function", "name": "registerProxyOverride", "stateMutability": "nonpayable",
		"inputs": [], "outputs": [{"name": "proxy", "type": "address"}]},
	{"type": "function", "name": "grantInitialAuthentication", "stateMutability": "nonpayable",
		"inputs": [{"name": "authAddress", "type": "address"}], "outputs": []},
	{"type": "function", "name": "startGrantAuthentication", "stateMutability": "nonpayable",
		"inputs": [{"name": "addr", "type": "address"}], "outputs": []},
	{"type": "function", "name": "endGrantAuthentication", "stateMutability": "nonpayable",
		"inputs": [{"name": "addr", "type": "address"}], "outputs": []},
	{"type": "function", "name": "revokeAuthentication", "stateMutability": "nonpayable",
		"inputs": [{"name": "addr", "type": "address"}], "outputs": []},
	{"type": "function", "name": "transferAccessTo", "stateMutability": "nonpayable",
		"inputs": [{"name": "from", "type": "address"}, {"name": "to", "type": "address"}], "outputs": []},
	{"type": "function", "name": "transferOwnership", "stateMutability": "nonpayable",
		"inputs": [{"name": "newOwner", "type": "address"}], "outputs": []},
	{"type": "function", "name": "proxies", "stateMutability": "view",
		"inputs": [{"name": "user", "type": "address"}], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "contracts", "stateMutability": "view",
		"inputs": [{"name": "addr", "type": "address"}], "outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "grantState", "stateMutability": "view",
		"inputs": [{"name": "addr", "type": "address"}],
		"outputs": [{"name": "state", "type": "uint8"}, {"name": "since", "type": "uint256"}]},
	{"type": "function", "name": "delegateProxyImplementation", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "owner", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "initialAddressSet", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "DELAY_PERIOD", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "uint256"}]}
]`

const authenticatedProxyABIJSON = `[
	{"type": "function", "name": "initialize", "stateMutability": "nonpayable",
		"inputs": [{"name": "addrUser", "type": "address"}, {"name": "addrRegistry", "type": "address"}], "outputs": []},
	{"type": "function", "name": "user", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "registry", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "revoked", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "setRevoke", "stateMutability": "nonpayable",
		"inputs": [{"name": "revoke", "type": "bool"}], "outputs": []},
	{"type": "function", "name": "proxy", "stateMutability": "nonpayable",
		"inputs": [{"name": "dest", "type": "address"}, {"name": "howToCall", "type": "uint8"}, {"name": "data", "type": "bytes"}],
		"outputs": [{"name": "result", "type": "bool"}]},
	{"type": "function", "name": "proxyAssert", "stateMutability": "nonpayable",
		"inputs": [{"name": "dest", "type": "address"}, {"name": "howToCall", "type": "uint8"}, {"name": "data", "type": "bytes"}],
		"outputs": []},
	{"type": "function", "name": "transferOwnership", "stateMutability": "nonpayable",
		"inputs": [{"name": "newUser", "type": "address"}], "outputs": []},
	{"type": "function", "name": "receiveApproval", "stateMutability": "nonpayable",
		"inputs": [{"name": "from", "type": "address"}, {"name": "value", "type": "uint256"},
			{"name": "token", "type": "address"}, {"name": "extraData", "type": "bytes"}], "outputs": []}
]`

const delegateProxyABIJSON = `[
	{"type": "function", "name": "implementation", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "proxyOwner", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "proxyType", "stateMutability": "pure",
		"inputs": [], "outputs": [{"name": "proxyTypeId", "type": "uint256"}]},
	{"type": "function", "name": "upgradeTo", "stateMutability": "nonpayable",
		"inputs": [{"name": "implementation", "type": "address"}], "outputs": []},
	{"type": "function", "name": "upgradeToAndCall", "stateMutability": "nonpayable",
		"inputs": [{"name": "implementation", "type": "address"}, {"name": "data", "type": "bytes"}], "outputs": []},
	{"type": "function", "name": "transferProxyOwnership", "stateMutability": "nonpayable",
		"inputs": [{"name": "newOwner", "type": "address"}], "outputs": []}
]`

const exchangeABIJSON = `[
	{"type": "function", "name": "hashOrder_", "stateMutability": "view",
		"inputs": [
			{"name": "registry", "type": "address"}, {"name": "maker", "type": "address"},
			{"name": "staticTarget", "type": "address"}, {"name": "staticSelector", "type": "bytes4"},
			{"name": "staticExtradata", "type": "bytes"}, {"name": "maximumFill", "type": "uint256"},
			{"name": "listingTime", "type": "uint256"}, {"name": "expirationTime", "type": "uint256"},
			{"name": "salt", "type": "uint256"}],
		"outputs": [{"name": "hash", "type": "bytes32"}]},
	{"type": "function", "name": "hashToSign_", "stateMutability": "view",
		"inputs": [{"name": "orderHash", "type": "bytes32"}],
		"outputs": [{"name": "hash", "type": "bytes32"}]},
	{"type": "function", "name": "validateOrderParameters_", "stateMutability": "view",
		"inputs": [
			{"name": "registry", "type": "address"}, {"name": "maker", "type": "address"},
			{"name": "staticTarget", "type": "address"}, {"name": "staticSelector", "type": "bytes4"},
			{"name": "staticExtradata", "type": "bytes"}, {"name": "maximumFill", "type": "uint256"},
			{"name": "listingTime", "type": "uint256"}, {"name": "expirationTime", "type": "uint256"},
			{"name": "salt", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "validateOrderAuthorization_", "stateMutability": "view",
		"inputs": [{"name": "hash", "type": "bytes32"}, {"name": "maker", "type": "address"}, {"name": "signature", "type": "bytes"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "approveOrderHash_", "stateMutability": "nonpayable",
		"inputs": [{"name": "hash", "type": "bytes32"}], "outputs": []},
	{"type": "function", "name": "approveOrder_", "stateMutability": "nonpayable",
		"inputs": [
			{"name": "registry", "type": "address"}, {"name": "maker", "type": "address"},
			{"name": "staticTarget", "type": "address"}, {"name": "staticSelector", "type": "bytes4"},
			{"name": "staticExtradata", "type": "bytes"}, {"name": "maximumFill", "type": "uint256"},
			{"name": "listingTime", "type": "uint256"}, {"name": "expirationTime", "type": "uint256"},
			{"name": "salt", "type": "uint256"}, {"name": "orderbookInclusionDesired", "type": "bool"}],
		"outputs": []},
	{"type": "function", "name": "setOrderFill_", "stateMutability": "nonpayable",
		"inputs": [{"name": "hash", "type": "bytes32"}, {"name": "fill", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "atomicMatch_", "stateMutability": "nonpayable",
		"inputs": [
			{"name": "uints", "type": "uint256[16]"}, {"name": "staticSelectors", "type": "bytes4[2]"},
			{"name": "firstExtradata", "type": "bytes"}, {"name": "firstCalldata", "type": "bytes"},
			{"name": "secondExtradata", "type": "bytes"}, {"name": "secondCalldata", "type": "bytes"},
			{"name": "howToCalls", "type": "uint8[2]"}, {"name": "metadata", "type": "bytes32"},
			{"name": "signatures", "type": "bytes"}],
		"outputs": []},
	{"type": "function", "name": "fills", "stateMutability": "view",
		"inputs": [{"name": "maker", "type": "address"}, {"name": "hash", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "approved", "stateMutability": "view",
		"inputs": [{"name": "maker", "type": "address"}, {"name": "hash", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "registries", "stateMutability": "view",
		"inputs": [{"name": "registry", "type": "address"}], "outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "name", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "string"}]},
	{"type": "function", "name": "version", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "string"}]},
	{"type": "function", "name": "chainId", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "DOMAIN_SEPARATOR", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "bytes32"}]}
]`

const atomicizerABIJSON = `[
	{"type": "function", "name": "atomicize", "stateMutability": "nonpayable",
		"inputs": [
			{"name": "addrs", "type": "address[]"}, {"name": "values", "type": "uint256[]"},
			{"name": "calldataLengths", "type": "uint256[]"}, {"name": "calldatas", "type": "bytes"}],
		"outputs": []}
]`

const staticABIJSON = `[
	{"type": "function", "name": "atomicizer", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "address"}]}
]`

// ERC20 ABI JSON for the token surface the proxies and fixtures use
const erc20ABIJSON = `[
	{"type": "function", "name": "totalSupply", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "balanceOf", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "allowance", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "approve", "stateMutability": "nonpayable",
		"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "transfer", "stateMutability": "nonpayable",
		"inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "transferFrom", "stateMutability": "nonpayable",
		"inputs": [{"name": "from", "type": "address"}, {"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "mint", "stateMutability": "nonpayable",
		"inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"outputs": []}
]`

const erc1271ABIJSON = `[
	{"type": "function", "name": "isValidSignature", "stateMutability": "view",
		"inputs": [{"name": "hash", "type": "bytes32"}, {"name": "signature", "type": "bytes"}],
		"outputs": [{"name": "magicValue", "type": "bytes4"}]}
]`

// Parsed contract ABIs
var (
	RegistryABI           = mustParseABI("registry", registryABIJSON)
	AuthenticatedProxyABI = mustParseABI("authenticated proxy", authenticatedProxyABIJSON)
	DelegateProxyABI      = mustParseABI("delegate proxy", delegateProxyABIJSON)
	ExchangeABI           = mustParseABI("exchange", exchangeABIJSON)
	AtomicizerABI         = mustParseABI("atomicizer", atomicizerABIJSON)
	StaticABI             = mustParseABI("static", staticABIJSON)
	ERC20ABI              = mustParseABI("ERC20", erc20ABIJSON)
	ERC1271ABI            = mustParseABI("ERC1271", erc1271ABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}
