package wyvern

import (
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/registry"
)

// ChainID represents a blockchain chain ID
type ChainID int64

const (
	ChainIDMainnet     ChainID = 1
	ChainIDRinkeby     ChainID = 4
	ChainIDDevelopment ChainID = 50
	ChainIDKlaytn      ChainID = 8217
)

// SupportedChainIDs lists all supported chain IDs
var SupportedChainIDs = []ChainID{ChainIDMainnet, ChainIDRinkeby, ChainIDDevelopment, ChainIDKlaytn}

// ChainSettings holds the per-chain deployment parameters
type ChainSettings struct {
	PersonalSignPrefix string
	GrantDelay         time.Duration
}

// DefaultChainSettings maps chain IDs to their deployment parameters
var DefaultChainSettings = map[ChainID]ChainSettings{
	ChainIDMainnet: {
		PersonalSignPrefix: chain.DefaultPersonalSignPrefix,
		GrantDelay:         registry.DefaultDelay,
	},
	ChainIDRinkeby: {
		PersonalSignPrefix: chain.DefaultPersonalSignPrefix,
		GrantDelay:         registry.DefaultDelay,
	},
	ChainIDDevelopment: {
		PersonalSignPrefix: chain.DefaultPersonalSignPrefix,
		GrantDelay:         registry.DefaultDelay,
	},
	ChainIDKlaytn: {
		PersonalSignPrefix: "\x19Klaytn Signed Message:\n",
		GrantDelay:         registry.DefaultDelay,
	},
}

// IsSupported reports whether id is in SupportedChainIDs
func (id ChainID) IsSupported() bool {
	for _, supported := range SupportedChainIDs {
		if id == supported {
			return true
		}
	}
	return false
}
