package static

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrRejected is returned when a predicate refuses a match
	ErrRejected = errors.New("predicate rejected the match")

	// ErrUnknownPredicate is returned when no predicate answers the selector
	ErrUnknownPredicate = errors.New("unknown predicate selector")
)

// Predicate decides whether one side of a match may settle, and what the
// order's fill becomes if it does. Predicates must not depend on anything but args.
type Predicate interface {
	Validate(args *chain.StaticArgs) (newFill *big.Int, ok bool)
}

// PredicateFunc adapts a function to Predicate
type PredicateFunc func(args *chain.StaticArgs) (*big.Int, bool)

// Validate calls f
func (f PredicateFunc) Validate(args *chain.StaticArgs) (*big.Int, bool) {
	return f(args)
}

// Built-in predicates
var (
	// Any accepts every match and reports a fill of one
	Any = PredicateFunc(func(*chain.StaticArgs) (*big.Int, bool) {
		return big.NewInt(1), true
	})

	// AnyNoFill accepts every match without consuming the order
	AnyNoFill = PredicateFunc(func(*chain.StaticArgs) (*big.Int, bool) {
		return new(big.Int), true
	})

	// AnyAddOne accepts every match and consumes one unit of fill
	AnyAddOne = PredicateFunc(func(args *chain.StaticArgs) (*big.Int, bool) {
		return new(big.Int).Add(args.Fill, big.NewInt(1)), true
	})
)

// Selectors of the built-in predicates
var (
	SelectorAny       = chain.PredicateSelector("any")
	SelectorAnyNoFill = chain.PredicateSelector("anyNoFill")
	SelectorAnyAddOne = chain.PredicateSelector("anyAddOne")
)

// Static hosts predicates behind one address and remembers the atomicizer
// that predicates inspecting batched calls refer to.
type Static struct {
	atomicizer common.Address
	predicates map[[4]byte]Predicate
	names      map[[4]byte]string
}

// New creates a predicate host with the built-in predicates registered
func New(atomicizer common.Address) *Static {
	s := &Static{
		atomicizer: atomicizer,
		predicates: make(map[[4]byte]Predicate),
		names:      make(map[[4]byte]string),
	}
	s.Register("any", Any)
	s.Register("anyNoFill", AnyNoFill)
	s.Register("anyAddOne", AnyAddOne)
	return s
}

// Register adds a predicate under name and returns its selector. Register
// before deploying; the table is not guarded for concurrent use.
func (s *Static) Register(name string, p Predicate) [4]byte {
	sel := chain.PredicateSelector(name)
	s.predicates[sel] = p
	s.names[sel] = name
	return sel
}

// Call answers atomicizer() or runs the predicate addressed by the selector
func (s *Static) Call(env *ledger.Env, input []byte) ([]byte, error) {
	if len(input) >= 4 {
		if method, err := chain.StaticABI.MethodById(input[:4]); err == nil && method.Name == "atomicizer" {
			return method.Outputs.Pack(s.atomicizer)
		}
	}

	selector, args, err := chain.UnpackStaticCall(input)
	if err != nil {
		return nil, err
	}
	p, ok := s.predicates[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownPredicate, selector)
	}
	fill, ok := p.Validate(args)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRejected, s.names[selector])
	}
	return chain.PackFill(fill)
}

// Deploy deploys s from the given account
func Deploy(ctx context.Context, l *ledger.Ledger, from common.Address, s *Static) (common.Address, error) {
	addr, _, err := l.Deploy(ctx, from, s)
	return addr, err
}

// Atomicizer reads the atomicizer address recorded by the predicate host at addr
func Atomicizer(ctx context.Context, l *ledger.Ledger, addr common.Address) (common.Address, error) {
	out, err := ledger.NewBoundContract(l, addr, &chain.StaticABI).Call(ctx, common.Address{}, "atomicizer")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}
