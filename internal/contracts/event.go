package contracts

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"aaudSwap/internal/model"
)

// DecodeSwapEvent decodes a TokenSwapped log.
func DecodeSwapEvent(log types.Log) (model.SwapEvent, error) {
	parsed, err := TokenSwapABI()
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("parse swap abi: %w", err)
	}
	event := parsed.Events[EventTokenSwapped]

	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.SwapEvent{}, fmt.Errorf("not a %s log", EventTokenSwapped)
	}
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return model.SwapEvent{}, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}

	var topics struct {
		User    common.Address
		TokenIn common.Address
	}
	if err := abi.ParseTopics(&topics, indexed, log.Topics[1:]); err != nil {
		return model.SwapEvent{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 2 {
		return model.SwapEvent{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}
	amountIn, err := asBigInt(values[0])
	if err != nil {
		return model.SwapEvent{}, err
	}
	amountOut, err := asBigInt(values[1])
	if err != nil {
		return model.SwapEvent{}, err
	}

	return model.SwapEvent{
		User:      topics.User.Hex(),
		TokenIn:   topics.TokenIn.Hex(),
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
	}, nil
}

// FindSwapEvent returns the first TokenSwapped event emitted by swap in
// the receipt.
func FindSwapEvent(receipt *types.Receipt, swap common.Address) (model.SwapEvent, bool) {
	if receipt == nil {
		return model.SwapEvent{}, false
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != swap {
			continue
		}
		event, err := DecodeSwapEvent(*log)
		if err == nil {
			return event, true
		}
	}
	return model.SwapEvent{}, false
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
