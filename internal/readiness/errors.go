package readiness

import "strings"

// ErrorKind classifies why an action is withheld. These are expected user
// facing states, not faults.
type ErrorKind uint8

const (
	NotWhitelisted ErrorKind = 1 << iota
	InvalidAmount
	InsufficientBalance
	ReadFailure
	TransactionFailed
)

var errorKinds = []ErrorKind{NotWhitelisted, InvalidAmount, InsufficientBalance, ReadFailure, TransactionFailed}

func (k ErrorKind) String() string {
	switch k {
	case NotWhitelisted:
		return "not_whitelisted"
	case InvalidAmount:
		return "invalid_amount"
	case InsufficientBalance:
		return "insufficient_balance"
	case ReadFailure:
		return "read_failure"
	case TransactionFailed:
		return "transaction_failed"
	default:
		return "unknown"
	}
}

// Message is the text shown to the user.
func (k ErrorKind) Message() string {
	switch k {
	case NotWhitelisted:
		return "This token is not whitelisted for swapping."
	case InvalidAmount:
		return "Invalid amount. Please check your balance."
	case InsufficientBalance:
		return "Amount exceeds your balance."
	case ReadFailure:
		return "Could not read token state from the chain."
	case TransactionFailed:
		return "Transaction failed. You can retry."
	default:
		return ""
	}
}

// ErrorSet is a set of ErrorKind values.
type ErrorSet uint8

// Add returns the set with kinds added.
func (s ErrorSet) Add(kinds ...ErrorKind) ErrorSet {
	for _, kind := range kinds {
		s |= ErrorSet(kind)
	}
	return s
}

// Has reports whether kind is in the set.
func (s ErrorSet) Has(kind ErrorKind) bool {
	return s&ErrorSet(kind) != 0
}

// Empty reports whether the set has no kinds.
func (s ErrorSet) Empty() bool {
	return s == 0
}

// Kinds lists the kinds in a stable order.
func (s ErrorSet) Kinds() []ErrorKind {
	out := make([]ErrorKind, 0, len(errorKinds))
	for _, kind := range errorKinds {
		if s.Has(kind) {
			out = append(out, kind)
		}
	}
	return out
}

func (s ErrorSet) String() string {
	kinds := s.Kinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, kind.String())
	}
	return strings.Join(names, ",")
}
