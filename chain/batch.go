package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrBatchShape is returned when batch argument arrays disagree in length
var ErrBatchShape = errors.New("batch arrays have mismatched lengths")

// BatchCall represents a single call in an atomicized batch
type BatchCall struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// PackAtomicize builds atomicize calldata for a batch. Calldatas are concatenated
// and sliced back apart by their lengths.
func PackAtomicize(calls []BatchCall) ([]byte, error) {
	addrs := make([]common.Address, 0, len(calls))
	values := make([]*big.Int, 0, len(calls))
	lengths := make([]*big.Int, 0, len(calls))
	var calldatas []byte

	for _, c := range calls {
		addrs = append(addrs, c.To)
		values = append(values, orZero(c.Value))
		lengths = append(lengths, big.NewInt(int64(len(c.Data))))
		calldatas = append(calldatas, c.Data...)
	}

	data, err := AtomicizerABI.Pack("atomicize", addrs, values, lengths, nonNil(calldatas))
	if err != nil {
		return nil, fmt.Errorf("failed to pack atomicize: %w", err)
	}
	return data, nil
}

// SplitBatch reassembles batch calls from decoded atomicize arguments
func SplitBatch(addrs []common.Address, values, lengths []*big.Int, calldatas []byte) ([]BatchCall, error) {
	if len(addrs) != len(values) || len(addrs) != len(lengths) {
		return nil, ErrBatchShape
	}
	calls := make([]BatchCall, 0, len(addrs))
	offset := uint64(0)
	for i, addr := range addrs {
		if !lengths[i].IsUint64() {
			return nil, fmt.Errorf("%w: length %d overflows", ErrBatchShape, i)
		}
		end := offset + lengths[i].Uint64()
		if end < offset || end > uint64(len(calldatas)) {
			return nil, fmt.Errorf("%w: calldata %d out of range", ErrBatchShape, i)
		}
		calls = append(calls, BatchCall{To: addr, Value: values[i], Data: calldatas[offset:end]})
		offset = end
	}
	return calls, nil
}

// PackTransferFrom builds ERC20 transferFrom calldata
func PackTransferFrom(from, to common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI.Pack("transferFrom", from, to, orZero(amount))
	if err != nil {
		return nil, fmt.Errorf("failed to pack transferFrom: %w", err)
	}
	return data, nil
}

// PackTransfer builds ERC20 transfer calldata
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI.Pack("transfer", to, orZero(amount))
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	return data, nil
}

// PackApprove builds ERC20 approve calldata
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI.Pack("approve", spender, orZero(amount))
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return data, nil
}
