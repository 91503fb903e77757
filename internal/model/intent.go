package model

import "strings"

// SwapIntent is the user's current selection. AmountText is raw input.
type SwapIntent struct {
	Token      Token
	AmountText string
}

// IsEmpty reports whether no amount has been entered.
func (i SwapIntent) IsEmpty() bool {
	return strings.TrimSpace(i.AmountText) == ""
}
