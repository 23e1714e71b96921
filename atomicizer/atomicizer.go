package atomicizer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNativeValue is returned for batch entries that carry value; the ledger has no native currency
var ErrNativeValue = errors.New("atomicizer cannot forward native value")

// Atomicizer runs a batch of calls in order and fails as a whole if any of them fails.
// Proxies reach it with a delegate call so every batch entry is sent by the proxy.
type Atomicizer struct{}

// New returns the atomicizer contract
func New() *Atomicizer {
	return &Atomicizer{}
}

// Call dispatches atomicize
func (a *Atomicizer) Call(env *ledger.Env, input []byte) ([]byte, error) {
	method, args, err := ledger.Dispatch(&chain.AtomicizerABI, input)
	if err != nil {
		return nil, err
	}
	if method.Name != "atomicize" {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownSelector, method.Name)
	}

	calls, err := chain.SplitBatch(
		args[0].([]common.Address),
		args[1].([]*big.Int),
		args[2].([]*big.Int),
		args[3].([]byte),
	)
	if err != nil {
		return nil, err
	}
	for i, c := range calls {
		if c.Value != nil && c.Value.Sign() != 0 {
			return nil, fmt.Errorf("batch call %d: %w", i, ErrNativeValue)
		}
		if _, err := env.Call(c.To, c.Data); err != nil {
			return nil, fmt.Errorf("batch call %d to %s: %w", i, c.To.Hex(), err)
		}
	}
	return nil, nil
}

// Deploy deploys an atomicizer from the given account
func Deploy(ctx context.Context, l *ledger.Ledger, from common.Address) (common.Address, error) {
	addr, _, err := l.Deploy(ctx, from, New())
	return addr, err
}
