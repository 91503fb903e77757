package controller

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"aaudSwap/internal/contracts"
	"aaudSwap/internal/metrics"
	"aaudSwap/internal/reader"
	"aaudSwap/internal/readiness"
)

type callKey struct {
	target common.Address
	method string
}

// chainStub answers ERC20 and swap contract reads for usdc and the
// stablecoin. A gated call blocks once until its channel is closed.
type chainStub struct {
	mu    sync.Mutex
	out   map[callKey]interface{}
	gates map[callKey]chan struct{}
	calls map[callKey]int
}

func newChainStub() *chainStub {
	return &chainStub{
		out: map[callKey]interface{}{
			{usdc.Address, contracts.MethodBalanceOf}:      big.NewInt(5_000_000),
			{usdc.Address, contracts.MethodAllowance}:      big.NewInt(0),
			{usdc.Address, contracts.MethodDecimals}:       uint8(6),
			{stablecoin, contracts.MethodBalanceOf}:        big.NewInt(0),
			{stablecoin, contracts.MethodDecimals}:         uint8(18),
			{swapAddr, contracts.MethodIsTokenWhitelisted}: true,
		},
		gates: make(map[callKey]chan struct{}),
		calls: make(map[callKey]int),
	}
}

func (c *chainStub) gate(target common.Address, method string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	c.gates[callKey{target, method}] = ch
	return ch
}

func (c *chainStub) count(target common.Address, method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[callKey{target, method}]
}

func (c *chainStub) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := c.method(msg.Data)
	if err != nil {
		return nil, err
	}
	key := callKey{*msg.To, method.Name}

	c.mu.Lock()
	c.calls[key]++
	gate, gated := c.gates[key]
	delete(c.gates, key)
	out, ok := c.out[key]
	c.mu.Unlock()

	if gated {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, nil
	}
	return method.Outputs.Pack(out)
}

func (c *chainStub) method(data []byte) (*abi.Method, error) {
	erc20, _ := contracts.ERC20ABI()
	if m, err := erc20.MethodById(data[:4]); err == nil {
		return m, nil
	}
	swapABI, _ := contracts.TokenSwapABI()
	return swapABI.MethodById(data[:4])
}

func TestSessionAppliesRefreshThatCompletesLate(t *testing.T) {
	chain := newChainStub()
	gate := chain.gate(usdc.Address, contracts.MethodBalanceOf)

	m := metrics.New(prometheus.NewRegistry())
	r := reader.New(reader.Config{SwapContract: swapAddr}, chain, m, nil)
	s := New(testConfig(), r, newFakeSubmitter(), &fakeWallet{owner: ownerAddr, connected: true}, m, nil)
	runSession(t, s)
	ctx := context.Background()

	require.NoError(t, s.SelectToken(ctx, "USDC"))
	require.Eventually(t, func() bool {
		return chain.count(usdc.Address, contracts.MethodBalanceOf) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.SetAmount(ctx, "1"))
	require.Eventually(t, func() bool {
		v, err := s.View(ctx)
		return err == nil && v.Snapshot.RawAllowance != nil
	}, time.Second, 5*time.Millisecond)

	v, err := s.View(ctx)
	require.NoError(t, err)
	require.Equal(t, readiness.StateLoading, v.Readiness.State)

	close(gate)
	require.Eventually(t, func() bool {
		v, err := s.View(ctx)
		return err == nil && v.Readiness.State == readiness.StateApprove
	}, time.Second, 5*time.Millisecond)

	v, err = s.View(ctx)
	require.NoError(t, err)
	require.Equal(t, "5", v.Readiness.DisplayBalance)
	require.Equal(t, r.Snapshot(usdc.Address, ownerAddr).Seq, v.Snapshot.Seq)
}
