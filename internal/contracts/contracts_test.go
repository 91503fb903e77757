package contracts

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type stubCaller struct {
	responses map[string][]byte
	err       error
	calls     int
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.responses[string(msg.Data[:4])], nil
}

func selector(t *testing.T, method string) string {
	t.Helper()
	parsed, err := ERC20ABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	if m, ok := parsed.Methods[method]; ok {
		return string(m.ID)
	}
	parsed, err = TokenSwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return string(parsed.Methods[method].ID)
}

func TestBalanceAndAllowance(t *testing.T) {
	parsed, _ := ERC20ABI()
	balance, err := parsed.Methods[MethodBalanceOf].Outputs.Pack(big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("pack balance: %v", err)
	}
	allowance, err := parsed.Methods[MethodAllowance].Outputs.Pack(big.NewInt(42))
	if err != nil {
		t.Fatalf("pack allowance: %v", err)
	}
	decimals, err := parsed.Methods[MethodDecimals].Outputs.Pack(uint8(6))
	if err != nil {
		t.Fatalf("pack decimals: %v", err)
	}

	caller := &stubCaller{responses: map[string][]byte{
		selector(t, MethodBalanceOf): balance,
		selector(t, MethodAllowance): allowance,
		selector(t, MethodDecimals):  decimals,
	}}

	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	spender := common.HexToAddress("0x3333333333333333333333333333333333333333")

	gotBalance, err := BalanceOf(context.Background(), caller, token, owner)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if gotBalance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("balance mismatch: %s", gotBalance)
	}

	gotAllowance, err := Allowance(context.Background(), caller, token, owner, spender)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if gotAllowance.Int64() != 42 {
		t.Fatalf("allowance mismatch: %s", gotAllowance)
	}

	gotDecimals, err := Decimals(context.Background(), caller, token)
	if err != nil {
		t.Fatalf("decimals: %v", err)
	}
	if gotDecimals != 6 {
		t.Fatalf("decimals mismatch: %d", gotDecimals)
	}
}

func TestIsTokenWhitelisted(t *testing.T) {
	parsed, _ := TokenSwapABI()
	out, err := parsed.Methods[MethodIsTokenWhitelisted].Outputs.Pack(true)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	caller := &stubCaller{responses: map[string][]byte{selector(t, MethodIsTokenWhitelisted): out}}

	ok, err := IsTokenWhitelisted(context.Background(), caller, common.Address{1}, common.Address{2})
	if err != nil {
		t.Fatalf("isTokenWhitelisted: %v", err)
	}
	if !ok {
		t.Fatalf("expected whitelisted")
	}
}

func TestCallEmptyResponseIsError(t *testing.T) {
	caller := &stubCaller{responses: map[string][]byte{}}
	_, err := Decimals(context.Background(), caller, common.Address{1})
	if !errors.Is(err, ErrNoCode) {
		t.Fatalf("expected ErrNoCode for address without code, got %v", err)
	}
}

func TestCallPropagatesRPCError(t *testing.T) {
	rpcErr := errors.New("connection refused")
	caller := &stubCaller{err: rpcErr}
	_, err := BalanceOf(context.Background(), caller, common.Address{1}, common.Address{2})
	if !errors.Is(err, rpcErr) {
		t.Fatalf("expected wrapped rpc error, got %v", err)
	}
}

func TestPackApprove(t *testing.T) {
	spender := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := PackApprove(spender, big.NewInt(1_500_000))
	if err != nil {
		t.Fatalf("pack approve: %v", err)
	}
	parsed, _ := ERC20ABI()
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		t.Fatalf("method by id: %v", err)
	}
	if method.Name != MethodApprove {
		t.Fatalf("method mismatch: %s", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack args: %v", err)
	}
	if args[0].(common.Address) != spender {
		t.Fatalf("spender mismatch")
	}
	if args[1].(*big.Int).Int64() != 1_500_000 {
		t.Fatalf("amount mismatch")
	}
}

func TestDecodeSwapEvent(t *testing.T) {
	parsed, err := TokenSwapABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := parsed.Events[EventTokenSwapped]

	swap := common.HexToAddress("0x4444444444444444444444444444444444444444")
	user := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenIn := common.HexToAddress("0x1111111111111111111111111111111111111111")

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(2_000_000), big.NewInt(2_000_000_000_000_000_000))
	if err != nil {
		t.Fatalf("pack event: %v", err)
	}

	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: tokenIn, Topics: []common.Hash{{0x01}}},
		{
			Address: swap,
			Topics: []common.Hash{
				event.ID,
				common.BytesToHash(user.Bytes()),
				common.BytesToHash(tokenIn.Bytes()),
			},
			Data: data,
		},
	}}

	decoded, ok := FindSwapEvent(receipt, swap)
	if !ok {
		t.Fatalf("swap event not found")
	}
	if decoded.User != user.Hex() || decoded.TokenIn != tokenIn.Hex() {
		t.Fatalf("address mismatch: %+v", decoded)
	}
	if decoded.AmountIn != "2000000" || decoded.AmountOut != "2000000000000000000" {
		t.Fatalf("amount mismatch: %+v", decoded)
	}
}
