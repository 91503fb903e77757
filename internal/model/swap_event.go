package model

// SwapEvent is the decoded TokenSwapped event payload.
type SwapEvent struct {
	User      string `json:"user"`
	TokenIn   string `json:"token_in"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}
