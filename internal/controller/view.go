package controller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"aaudSwap/internal/model"
	"aaudSwap/internal/readiness"
)

// Phase tracks the approve-then-swap progress of one token.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseApprovalPending   Phase = "approval_pending"
	PhaseApprovalConfirmed Phase = "approval_confirmed"
	PhaseApprovalFailed    Phase = "approval_failed"
	PhaseSwapPending       Phase = "swap_pending"
	PhaseSwapConfirmed     Phase = "swap_confirmed"
	PhaseSwapFailed        Phase = "swap_failed"
)

// Failed reports whether the last transaction of the phase failed.
func (p Phase) Failed() bool {
	return p == PhaseApprovalFailed || p == PhaseSwapFailed
}

func phaseKind(p Phase) model.TxKind {
	switch p {
	case PhaseApprovalPending, PhaseApprovalConfirmed, PhaseApprovalFailed:
		return model.TxApprove
	case PhaseSwapPending, PhaseSwapConfirmed, PhaseSwapFailed:
		return model.TxSwap
	default:
		return ""
	}
}

// View is what the session presents to the user.
type View struct {
	Connected  bool
	Owner      common.Address
	Selected   bool
	Token      model.Token
	AmountText string
	Snapshot   model.TokenSnapshot
	Phase      Phase
	// Readiness carries TransactionFailed in addition to the engine errors
	// while the phase is a failed one.
	Readiness readiness.Result
	Approval  *model.PendingTransaction
	Swap      *model.PendingTransaction
	// StablecoinBalance is empty while unknown.
	StablecoinBalance string
	Message           string
	// Hint explains a valid amount that still cannot move any tokens.
	Hint string
}

func (s *Session) view() View {
	v := View{
		Connected:  s.connected,
		Owner:      s.owner,
		Selected:   s.selected,
		Token:      s.intent.Token,
		AmountText: s.intent.AmountText,
		Phase:      PhaseIdle,
		Message:    s.message,
	}
	if s.stable.RawBalance != nil && s.stable.Decimals != nil {
		v.StablecoinBalance = readiness.FormatRaw(s.stable.RawBalance, *s.stable.Decimals)
	}
	if !s.selected {
		v.Readiness = readiness.Evaluate(model.TokenSnapshot{}, s.intent, s.connected)
		return v
	}

	token := s.intent.Token.Address
	v.Snapshot = s.snapshot
	if phase, ok := s.phases[token]; ok {
		v.Phase = phase
	}
	v.Readiness = readiness.Evaluate(s.snapshot, s.intent, s.connected)
	if v.Phase.Failed() && s.connected {
		v.Readiness.Errors = v.Readiness.Errors.Add(readiness.TransactionFailed)
	}
	if v.Readiness.IsValidAmount && v.Readiness.RequiredRaw != nil && v.Readiness.RequiredRaw.Sign() == 0 {
		v.Hint = fmt.Sprintf("amount is below the smallest unit of %s; increase it", s.intent.Token.Symbol)
	}
	if tx, ok := s.pending[model.PendingKey{Kind: model.TxApprove, Token: token}]; ok {
		tx := tx
		v.Approval = &tx
	}
	if tx, ok := s.pending[model.PendingKey{Kind: model.TxSwap, Token: token}]; ok {
		tx := tx
		v.Swap = &tx
	}
	return v
}
