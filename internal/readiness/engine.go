package readiness

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"aaudSwap/internal/model"
)

// maxScale bounds the exponent and digit count of an amount. 78 digits
// hold any uint256.
const maxScale = 78

const evaluated = model.FieldBalance | model.FieldDecimals | model.FieldWhitelisted

// State is the actionable state of the current intent.
type State string

const (
	StateDisconnected State = "disconnected"
	StateLoading      State = "loading"
	StateIdle         State = "idle"
	StateBlocked      State = "blocked"
	StateApprove      State = "approve"
	StateSwap         State = "swap"
)

// Result is the outcome of one evaluation.
type Result struct {
	State          State
	DisplayBalance string
	// RequiredRaw is round(amount * 10^decimals); nil when the amount
	// does not parse as a positive number.
	RequiredRaw   *big.Int
	NeedsApproval bool
	IsValidAmount bool
	Errors        ErrorSet
	CanApprove    bool
	CanSwap       bool
	// ReceiveAmount is the stablecoin amount a swap yields at 1:1.
	ReceiveAmount string
}

// Evaluate classifies what the user may do with intent given snap. It has
// no side effects; equal inputs give equal results.
func Evaluate(snap model.TokenSnapshot, intent model.SwapIntent, connected bool) Result {
	if !connected {
		return Result{State: StateDisconnected}
	}

	var res Result
	if snap.Failed != 0 {
		res.Errors = res.Errors.Add(ReadFailure)
	}
	if !snap.Known().Has(evaluated) {
		res.State = StateLoading
		return res
	}

	balance := ToDisplay(snap.RawBalance, *snap.Decimals)
	res.DisplayBalance = balance.String()

	whitelisted := *snap.Whitelisted
	if !whitelisted {
		res.Errors = res.Errors.Add(NotWhitelisted)
	}

	text := strings.TrimSpace(intent.AmountText)
	if text == "" {
		res.State = settle(res)
		return res
	}

	amount, ok := parseAmount(text)
	if !ok {
		res.Errors = res.Errors.Add(InvalidAmount)
		res.State = settle(res)
		return res
	}
	res.RequiredRaw = ToRaw(amount, *snap.Decimals)

	if amount.Cmp(balance) > 0 {
		res.Errors = res.Errors.Add(InsufficientBalance, InvalidAmount)
		res.State = settle(res)
		return res
	}
	res.IsValidAmount = true
	res.ReceiveAmount = amount.String()

	if snap.RawAllowance == nil {
		if whitelisted {
			res.State = StateLoading
		} else {
			res.State = settle(res)
		}
		return res
	}

	res.NeedsApproval = NeedsApproval(snap.RawAllowance, res.RequiredRaw)
	res.CanApprove = whitelisted && res.NeedsApproval
	res.CanSwap = whitelisted && !res.NeedsApproval
	res.State = settle(res)
	return res
}

// parseAmount accepts plain positive decimals only. Exponent notation is
// refused so a short input cannot expand into a huge integer.
func parseAmount(text string) (decimal.Decimal, bool) {
	if strings.ContainsAny(text, "eE") {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(text)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	if exp := amount.Exponent(); exp < -maxScale || exp > maxScale || amount.NumDigits() > 2*maxScale {
		return decimal.Decimal{}, false
	}
	return amount, true
}

// NeedsApproval reports whether allowance is short of required. A zero
// allowance always needs approval, even for a zero requirement.
func NeedsApproval(allowance, required *big.Int) bool {
	if allowance == nil || allowance.Sign() == 0 {
		return true
	}
	if required == nil {
		return false
	}
	return allowance.Cmp(required) < 0
}

// MaxAmount returns the full balance in display units, for the "use
// maximum" shortcut.
func MaxAmount(snap model.TokenSnapshot) (string, bool) {
	if snap.RawBalance == nil || snap.Decimals == nil {
		return "", false
	}
	return ToDisplay(snap.RawBalance, *snap.Decimals).String(), true
}

// ToDisplay scales a raw integer amount down by 10^decimals without loss.
func ToDisplay(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ToRaw scales a display amount up by 10^decimals, rounding half away from
// zero to the nearest raw unit.
func ToRaw(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Round(0).BigInt()
}

// FormatRaw renders a raw amount in display units.
func FormatRaw(raw *big.Int, decimals uint8) string {
	return ToDisplay(raw, decimals).String()
}

func settle(res Result) State {
	switch {
	case res.CanApprove:
		return StateApprove
	case res.CanSwap:
		return StateSwap
	case res.Errors.Empty():
		return StateIdle
	default:
		return StateBlocked
	}
}
