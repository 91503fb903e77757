package reader

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"aaudSwap/internal/contracts"
	"aaudSwap/internal/model"
)

var (
	token = common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner = common.HexToAddress("0x2222222222222222222222222222222222222222")
	swap  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type fakeChain struct {
	t *testing.T

	mu        sync.Mutex
	balance   *big.Int
	allowance *big.Int
	decimals  uint8
	listed    bool
	failing   map[string]error
	calls     map[string]int
	// gates holds the first call of a method until closed.
	gates map[string]chan struct{}
}

func newFakeChain(t *testing.T) *fakeChain {
	return &fakeChain{
		t:         t,
		balance:   big.NewInt(1_000_000),
		allowance: big.NewInt(0),
		decimals:  6,
		listed:    true,
		failing:   make(map[string]error),
		calls:     make(map[string]int),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method := f.method(msg.Data)

	f.mu.Lock()
	f.calls[method.Name]++
	gate, gated := f.gates[method.Name]
	delete(f.gates, method.Name)
	f.mu.Unlock()
	if gated {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[method.Name]; err != nil {
		return nil, err
	}

	var out interface{}
	switch method.Name {
	case contracts.MethodBalanceOf:
		out = f.balance
	case contracts.MethodAllowance:
		out = f.allowance
	case contracts.MethodDecimals:
		out = f.decimals
	case contracts.MethodIsTokenWhitelisted:
		out = f.listed
	case "name":
		out = "Mock USDC"
	case "symbol":
		out = "USDC"
	default:
		f.t.Fatalf("unexpected call %s", method.Name)
	}
	data, err := method.Outputs.Pack(out)
	if err != nil {
		f.t.Fatalf("pack %s: %v", method.Name, err)
	}
	return data, nil
}

func (f *fakeChain) method(data []byte) *abi.Method {
	erc20, _ := contracts.ERC20ABI()
	if m, err := erc20.MethodById(data[:4]); err == nil {
		return m
	}
	swapABI, _ := contracts.TokenSwapABI()
	m, err := swapABI.MethodById(data[:4])
	if err != nil {
		f.t.Fatalf("unknown selector: %x", data[:4])
	}
	return m
}

func (f *fakeChain) gate(method string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[method] = ch
	return ch
}

func (f *fakeChain) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newReader(chain *fakeChain) *Reader {
	return New(Config{SwapContract: swap}, chain, nil, nil)
}

func TestRefreshWithoutOwnerSkipsOwnerReads(t *testing.T) {
	chain := newFakeChain(t)
	r := newReader(chain)

	snap := r.Refresh(context.Background(), token, common.Address{}, model.FieldsAll)

	if snap.RawBalance != nil || snap.RawAllowance != nil {
		t.Fatalf("owner fields should be absent: %+v", snap)
	}
	if snap.Decimals == nil || *snap.Decimals != 6 {
		t.Fatalf("decimals mismatch: %+v", snap.Decimals)
	}
	if snap.Whitelisted == nil || !*snap.Whitelisted {
		t.Fatalf("whitelist mismatch")
	}
	if snap.Failed != 0 {
		t.Fatalf("no failure expected: %v", snap.Failed)
	}
	if chain.count(contracts.MethodBalanceOf) != 0 || chain.count(contracts.MethodAllowance) != 0 {
		t.Fatalf("owner reads issued without owner")
	}
}

func TestRefreshReadsAllFields(t *testing.T) {
	chain := newFakeChain(t)
	chain.allowance = big.NewInt(250_000)
	r := newReader(chain)

	snap := r.Refresh(context.Background(), token, owner, model.FieldsAll)

	if snap.RawBalance.Int64() != 1_000_000 {
		t.Fatalf("balance mismatch: %s", snap.RawBalance)
	}
	if snap.RawAllowance.Int64() != 250_000 {
		t.Fatalf("allowance mismatch: %s", snap.RawAllowance)
	}
	if snap.Known() != model.FieldsAll {
		t.Fatalf("expected every field known, got %v", snap.Known())
	}
}

func TestFailedReadIsUnknownNotZero(t *testing.T) {
	chain := newFakeChain(t)
	r := newReader(chain)

	r.Refresh(context.Background(), token, owner, model.FieldsAll)

	chain.mu.Lock()
	chain.failing[contracts.MethodBalanceOf] = errors.New("rpc unavailable")
	chain.mu.Unlock()

	snap := r.Refresh(context.Background(), token, owner, model.FieldBalance)
	if snap.RawBalance != nil {
		t.Fatalf("failed balance must be absent, got %s", snap.RawBalance)
	}
	if !snap.Failed.Has(model.FieldBalance) {
		t.Fatalf("failure not recorded")
	}
	if snap.RawAllowance == nil {
		t.Fatalf("allowance should stay cached")
	}

	chain.mu.Lock()
	delete(chain.failing, contracts.MethodBalanceOf)
	chain.mu.Unlock()

	snap = r.Refresh(context.Background(), token, owner, model.FieldBalance)
	if snap.RawBalance == nil || snap.Failed != 0 {
		t.Fatalf("recovery expected: %+v", snap)
	}
}

func TestOwnerIndependentFieldsAreCached(t *testing.T) {
	chain := newFakeChain(t)
	r := newReader(chain)

	r.Refresh(context.Background(), token, owner, model.FieldsAll)
	r.Refresh(context.Background(), token, owner, model.FieldsOwner)
	r.Refresh(context.Background(), token, owner, model.FieldAllowance)

	if got := chain.count(contracts.MethodDecimals); got != 1 {
		t.Fatalf("decimals read %d times, want 1", got)
	}
	if got := chain.count(contracts.MethodIsTokenWhitelisted); got != 1 {
		t.Fatalf("whitelist read %d times, want 1", got)
	}
	if got := chain.count(contracts.MethodAllowance); got != 3 {
		t.Fatalf("allowance read %d times, want 3", got)
	}
}

func TestSubscribeReceivesRefreshes(t *testing.T) {
	chain := newFakeChain(t)
	r := newReader(chain)

	var got []model.TokenSnapshot
	cancel := r.Subscribe(func(snap model.TokenSnapshot) {
		got = append(got, snap)
	})

	r.Refresh(context.Background(), token, owner, model.FieldsAll)
	r.Refresh(context.Background(), token, owner, model.FieldBalance)
	cancel()
	r.Refresh(context.Background(), token, owner, model.FieldBalance)

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Seq <= got[0].Seq {
		t.Fatalf("sequence not increasing: %d then %d", got[0].Seq, got[1].Seq)
	}
}

func TestSnapshotWithoutIO(t *testing.T) {
	chain := newFakeChain(t)
	r := newReader(chain)

	empty := r.Snapshot(token, owner)
	if empty.Known() != 0 {
		t.Fatalf("expected empty snapshot")
	}

	r.Refresh(context.Background(), token, owner, model.FieldsAll)
	calls := chain.count(contracts.MethodBalanceOf)

	snap := r.Snapshot(token, owner)
	if snap.RawBalance == nil || chain.count(contracts.MethodBalanceOf) != calls {
		t.Fatalf("snapshot should come from cache")
	}

	// Mutating the returned value must not leak into the cache.
	snap.RawBalance.SetInt64(0)
	if r.Snapshot(token, owner).RawBalance.Int64() != 1_000_000 {
		t.Fatalf("cache mutated through snapshot")
	}
}

func TestClaimWriteRejectsOlderRequests(t *testing.T) {
	r := newReader(newFakeChain(t))
	key := fieldKey{key: model.SnapshotKey{Token: token, Owner: owner}, field: model.FieldBalance}

	if !r.claimWrite(key, 5) {
		t.Fatalf("first write should pass")
	}
	if r.claimWrite(key, 3) {
		t.Fatalf("older request must not overwrite newer result")
	}
	if !r.claimWrite(key, 6) {
		t.Fatalf("newer request should pass")
	}
}

func TestLateRefreshCarriesNewerStamp(t *testing.T) {
	chain := newFakeChain(t)
	r := newReader(chain)
	gate := chain.gate(contracts.MethodBalanceOf)

	full := make(chan model.TokenSnapshot, 1)
	go func() {
		full <- r.Refresh(context.Background(), token, owner, model.FieldsAll)
	}()
	for chain.count(contracts.MethodBalanceOf) == 0 {
		time.Sleep(time.Millisecond)
	}

	partial := r.Refresh(context.Background(), token, owner, model.FieldAllowance)
	if partial.RawBalance != nil {
		t.Fatalf("balance should still be unknown: %s", partial.RawBalance)
	}

	close(gate)
	merged := <-full
	if merged.Seq <= partial.Seq {
		t.Fatalf("completed refresh stamped %d, not after %d", merged.Seq, partial.Seq)
	}
	if merged.RawBalance == nil || merged.RawAllowance == nil {
		t.Fatalf("merged snapshot incomplete: %+v", merged)
	}
	if got := r.Snapshot(token, owner).Seq; got != merged.Seq {
		t.Fatalf("cached stamp %d, want %d", got, merged.Seq)
	}
}

func TestTokenInfoFillsDecimals(t *testing.T) {
	chain := newFakeChain(t)
	r := newReader(chain)

	meta, err := r.TokenInfo(context.Background(), token)
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	if meta.Symbol != "USDC" || meta.Decimals != 6 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	snap := r.Snapshot(token, owner)
	if snap.Decimals == nil || *snap.Decimals != 6 {
		t.Fatalf("decimals not cached: %+v", snap.Decimals)
	}
}
