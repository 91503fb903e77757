package contracts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"aaudSwap/internal/model"
)

var (
	// ErrNoCode is returned when a call to an address without code yields
	// empty output.
	ErrNoCode = errors.New("empty response")
	// ErrUndecodable is returned when call output does not match the ABI.
	ErrUndecodable = errors.New("undecodable response")
)

// Caller performs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Call packs method with args, executes an eth_call against target at the
// latest block and unpacks the return values.
func Call(ctx context.Context, caller Caller, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	// An eth_call to an address without code succeeds with empty output.
	if len(resp) == 0 && len(parsed.Methods[method].Outputs) > 0 {
		return nil, fmt.Errorf("call %s on %s: %w", method, target.Hex(), ErrNoCode)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w: %v", method, ErrUndecodable, err)
	}
	return values, nil
}

// BalanceOf reads an ERC20 balance.
func BalanceOf(ctx context.Context, caller Caller, token, owner common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := Call(ctx, caller, token, parsed, MethodBalanceOf, owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Decimals reads the ERC20 decimals.
func Decimals(ctx context.Context, caller Caller, token common.Address) (uint8, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := Call(ctx, caller, token, parsed, MethodDecimals)
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

// Allowance reads how much spender may transfer on behalf of owner.
func Allowance(ctx context.Context, caller Caller, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := Call(ctx, caller, token, parsed, MethodAllowance, owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// IsTokenWhitelisted asks the swap contract whether token is swappable.
func IsTokenWhitelisted(ctx context.Context, caller Caller, swap, token common.Address) (bool, error) {
	parsed, err := TokenSwapABI()
	if err != nil {
		return false, fmt.Errorf("parse swap abi: %w", err)
	}
	values, err := Call(ctx, caller, swap, parsed, MethodIsTokenWhitelisted, token)
	if err != nil {
		return false, err
	}
	return asBool(values[0])
}

// TotalSwapped reads the cumulative raw amount swapped for token.
func TotalSwapped(ctx context.Context, caller Caller, swap, token common.Address) (*big.Int, error) {
	parsed, err := TokenSwapABI()
	if err != nil {
		return nil, fmt.Errorf("parse swap abi: %w", err)
	}
	values, err := Call(ctx, caller, swap, parsed, MethodTotalSwapped, token)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// StablecoinAddress reads the stablecoin the swap contract pays out.
func StablecoinAddress(ctx context.Context, caller Caller, swap common.Address) (common.Address, error) {
	parsed, err := TokenSwapABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse swap abi: %w", err)
	}
	values, err := Call(ctx, caller, swap, parsed, MethodAAUDToken)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// FetchTokenMeta loads token metadata via ERC20 calls. Name and symbol
// are best effort; decimals are required.
func FetchTokenMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	decimals, err := Decimals(ctx, caller, token)
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := Call(ctx, caller, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := Call(ctx, caller, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := Call(ctx, caller, token, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := Call(ctx, caller, token, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return parsed.Pack(MethodApprove, spender, amount)
}

// PackSwapToken encodes swapToken(tokenIn, amountIn).
func PackSwapToken(tokenIn common.Address, amountIn *big.Int) ([]byte, error) {
	parsed, err := TokenSwapABI()
	if err != nil {
		return nil, fmt.Errorf("parse swap abi: %w", err)
	}
	return parsed.Pack(MethodSwapToken, tokenIn, amountIn)
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	v, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unsupported bool type %T", value)
	}
	return v, nil
}
