// Example settles a token swap between two makers on an in-process exchange
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	wyvern "github.com/HappyFeet07/WyvernV3Fork"
	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/internal/events"
	"github.com/HappyFeet07/WyvernV3Fork/internal/logging"
	"github.com/HappyFeet07/WyvernV3Fork/internal/testtoken"
	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	deployer = common.HexToAddress("0x000000000000000000000000000000000000d0d0")
	operator = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
)

func main() {
	ctx := context.Background()

	journal, err := events.OpenJournal(":memory:")
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}

	client, err := wyvern.NewClient(ctx, wyvern.ClientConfig{
		ChainID:  wyvern.ChainIDDevelopment,
		Deployer: deployer,
		Clock:    ledger.NewManualClock(uint64(time.Now().Unix())),
		Logger:   logging.NewLogger("warn", "wyvern-example", "dev"),
		Journal:  journal,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	info, err := client.Info(ctx)
	if err != nil {
		log.Fatalf("Failed to get info: %v", err)
	}
	fmt.Printf("Exchange: %s %s at %s (registry %s)\n", info.Name, info.Version, info.Exchange, info.Registry)

	// Two makers, each with a proxy
	alice := newMaker(client)
	bob := newMaker(client)
	aliceProxy, err := client.RegisterProxy(ctx, alice.Maker())
	if err != nil {
		log.Fatalf("Failed to register proxy: %v", err)
	}
	bobProxy, err := client.RegisterProxy(ctx, bob.Maker())
	if err != nil {
		log.Fatalf("Failed to register proxy: %v", err)
	}
	fmt.Printf("Alice %s uses proxy %s\n", alice.Maker().Hex(), aliceProxy.Hex())
	fmt.Printf("Bob   %s uses proxy %s\n", bob.Maker().Hex(), bobProxy.Hex())

	// Alice holds token A, Bob holds token B; each lets their proxy move it
	tokenA := deployToken(ctx, client, alice.Maker(), aliceProxy, "100")
	tokenB := deployToken(ctx, client, bob.Maker(), bobProxy, "100")

	anySel, _ := client.Selector("any")
	orderData := func() *chain.OrderData {
		return &chain.OrderData{
			Registry:       client.Registry().Address(),
			StaticTarget:   client.Static(),
			StaticSelector: anySel,
			MaximumFill:    big.NewInt(1),
		}
	}

	first, err := alice.BuildSignedOrder(orderData(), chain.SignatureTyped)
	if err != nil {
		log.Fatalf("Failed to sign order: %v", err)
	}
	second, err := bob.BuildSignedOrder(orderData(), chain.SignaturePersonal)
	if err != nil {
		log.Fatalf("Failed to sign order: %v", err)
	}

	validation, err := client.ValidateOrderAuthorization(ctx, operator, first.Order.Hash(), first.Order.Maker, first.Signature)
	if err != nil {
		log.Fatalf("Failed to validate order: %v", err)
	}
	fmt.Printf("\nAlice's order %s authorized: %v\n", first.Order.Hash().Hex(), validation)

	ten, _ := wyvern.TokenAmount("10", 0)
	twenty, _ := wyvern.TokenAmount("20", 0)
	m := &exchange.Match{
		First:           first.Order,
		FirstCall:       transferFrom(tokenA.Address(), alice.Maker(), bob.Maker(), ten),
		FirstSignature:  first.Signature,
		Second:          second.Order,
		SecondCall:      transferFrom(tokenB.Address(), bob.Maker(), alice.Maker(), twenty),
		SecondSignature: second.Signature,
	}

	fmt.Println("\nMatching orders...")
	result, err := client.AtomicMatch(ctx, operator, m)
	if err != nil {
		log.Fatalf("Failed to match: %v", err)
	}
	fmt.Printf("Settled in %s, events %v\n", result.TxHash, result.Events)
	fmt.Printf("New fills: first=%s second=%s\n", result.Matched.NewFirstFill, result.Matched.NewSecondFill)

	printBalance(ctx, "Alice token B", tokenB, alice.Maker())
	printBalance(ctx, "Bob token A", tokenA, bob.Maker())

	fmt.Println("\nReplaying the same match...")
	if _, err := client.AtomicMatch(ctx, operator, m); err != nil {
		fmt.Printf("Rejected: %v\n", err)
	}

	envs, err := client.Events(ctx, "", 10)
	if err != nil {
		log.Fatalf("Failed to read journal: %v", err)
	}
	fmt.Printf("\nJournal holds %d recent events:\n", len(envs))
	for _, env := range envs {
		fmt.Printf("  %s %s\n", env.EventType, env.Contract)
	}
}

func newMaker(client *wyvern.Client) *chain.OrderBuilder {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}
	builder, err := client.NewOrderBuilder(key)
	if err != nil {
		log.Fatalf("Failed to create order builder: %v", err)
	}
	return builder
}

func deployToken(ctx context.Context, client *wyvern.Client, holder, holderProxy common.Address, amount string) *testtoken.Session {
	token, err := testtoken.Deploy(ctx, client.Ledger(), deployer)
	if err != nil {
		log.Fatalf("Failed to deploy token: %v", err)
	}
	value, err := wyvern.TokenAmount(amount, 0)
	if err != nil {
		log.Fatalf("Invalid amount: %v", err)
	}
	if err := token.Mint(ctx, holder, value); err != nil {
		log.Fatalf("Failed to mint: %v", err)
	}
	if err := token.Approve(ctx, holder, holderProxy, value); err != nil {
		log.Fatalf("Failed to approve proxy: %v", err)
	}
	return token
}

func transferFrom(token, from, to common.Address, amount *big.Int) chain.Call {
	data, err := chain.PackTransferFrom(from, to, amount)
	if err != nil {
		log.Fatalf("Failed to pack transfer: %v", err)
	}
	return chain.Call{Target: token, HowToCall: chain.HowToCallCall, Data: data}
}

func printBalance(ctx context.Context, label string, token *testtoken.Session, owner common.Address) {
	balance, err := token.BalanceOf(ctx, owner)
	if err != nil {
		log.Printf("Failed to read balance: %v", err)
		return
	}
	fmt.Printf("%s: %s\n", label, balance)
}
