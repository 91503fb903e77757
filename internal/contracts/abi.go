package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
    "name": "allowance",
    "outputs": [{"type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
    "name": "approve",
    "outputs": [{"type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

// Some older tokens return name and symbol as bytes32.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

const tokenSwapABIJSON = `[
  {"inputs": [], "name": "aaudToken", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "token", "type": "address"}], "name": "whitelistedTokens", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "token", "type": "address"}], "name": "totalSwapped", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "token", "type": "address"}], "name": "isTokenWhitelisted", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [{"name": "tokenIn", "type": "address"}, {"name": "amountIn", "type": "uint256"}],
    "name": "swapToken",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "user", "type": "address"},
      {"indexed": true, "name": "tokenIn", "type": "address"},
      {"indexed": false, "name": "amountIn", "type": "uint256"},
      {"indexed": false, "name": "amountOut", "type": "uint256"}
    ],
    "name": "TokenSwapped",
    "type": "event"
  }
]`

// Method names used by the swap flow.
const (
	MethodBalanceOf          = "balanceOf"
	MethodDecimals           = "decimals"
	MethodAllowance          = "allowance"
	MethodApprove            = "approve"
	MethodIsTokenWhitelisted = "isTokenWhitelisted"
	MethodSwapToken          = "swapToken"
	MethodTotalSwapped       = "totalSwapped"
	MethodAAUDToken          = "aaudToken"

	EventTokenSwapped = "TokenSwapped"
)

var (
	erc20ABI            abi.ABI
	erc20ABIOnce        sync.Once
	erc20ABIErr         error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
	tokenSwapABI        abi.ABI
	tokenSwapABIOnce    sync.Once
	tokenSwapABIErr     error
)

// ERC20ABI returns the parsed ERC20 ABI.
func ERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// TokenSwapABI returns the parsed swap contract ABI.
func TokenSwapABI() (abi.ABI, error) {
	tokenSwapABIOnce.Do(func() {
		tokenSwapABI, tokenSwapABIErr = abi.JSON(strings.NewReader(tokenSwapABIJSON))
	})
	return tokenSwapABI, tokenSwapABIErr
}
