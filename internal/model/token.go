package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a swap candidate from the static token list.
type Token struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
}

// TokenMeta captures ERC20 metadata read from chain.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// FindToken looks a token up by address or case-insensitive symbol.
func FindToken(tokens []Token, key string) (Token, bool) {
	key = strings.TrimSpace(key)
	if common.IsHexAddress(key) {
		addr := common.HexToAddress(key)
		for _, token := range tokens {
			if token.Address == addr {
				return token, true
			}
		}
		return Token{}, false
	}
	for _, token := range tokens {
		if strings.EqualFold(token.Symbol, key) {
			return token, true
		}
	}
	return Token{}, false
}
