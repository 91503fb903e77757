package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aaudSwap/internal/controller"
	"aaudSwap/internal/model"
	"aaudSwap/internal/readiness"
)

// refreshGrace bounds the wait for balances to update after a confirmation.
const refreshGrace = 15 * time.Second

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := intentContext(cmd, a.ctx)
	defer cancel()

	view, err := a.prepareIntent(ctx, cmd)
	if err != nil {
		return err
	}
	printView(view)
	return nil
}

func runApprove(cmd *cobra.Command, _ []string) error {
	return runTransaction(cmd, model.TxApprove)
}

func runSwap(cmd *cobra.Command, _ []string) error {
	return runTransaction(cmd, model.TxSwap)
}

func runTransaction(cmd *cobra.Command, kind model.TxKind) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := intentContext(cmd, a.ctx)
	defer cancel()

	view, err := a.prepareIntent(ctx, cmd)
	if err != nil {
		return err
	}
	baseSeq := view.Snapshot.Seq

	var tx model.PendingTransaction
	switch kind {
	case model.TxApprove:
		tx, err = a.session.RequestApprove(ctx)
	default:
		tx, err = a.session.RequestSwap(ctx)
	}
	if err != nil {
		printView(view)
		if errors.Is(err, controller.ErrActionUnavailable) && kind == model.TxSwap && view.Readiness.CanApprove {
			color.Yellow("\nApproval required first: run `swapper approve` with the same amount.")
		}
		return err
	}
	if tx.Status == model.TxFailed {
		color.Red("\n%s rejected: %s", kind, tx.Err)
		return fmt.Errorf("%s rejected", kind)
	}
	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(tx.Hash.Hex()))

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Waiting for %s confirmation...", kind)
	s.Start()
	view, err = waitView(ctx, a.session, func(v controller.View) bool {
		pending := pendingOf(v, kind)
		return pending == nil || pending.Status.Terminal()
	})
	s.Stop()
	if err != nil {
		return fmt.Errorf("wait for %s: %w", kind, err)
	}

	pending := pendingOf(view, kind)
	if pending == nil {
		return fmt.Errorf("%s no longer tracked", kind)
	}
	if pending.Status == model.TxFailed {
		printView(view)
		color.Red("\n%s failed in block %d: %s", kind, pending.BlockNumber, pending.Err)
		return fmt.Errorf("%s failed", kind)
	}

	settleCtx, settleCancel := context.WithTimeout(ctx, refreshGrace)
	defer settleCancel()
	if refreshed, err := waitView(settleCtx, a.session, func(v controller.View) bool {
		return v.Snapshot.Seq > baseSeq && v.Readiness.State != readiness.StateLoading
	}); err == nil {
		view = refreshed
	}

	printView(view)
	if view.Message != "" {
		color.Green("\n✓ %s", view.Message)
	}
	return nil
}

func (a *app) prepareIntent(ctx context.Context, cmd *cobra.Command) (controller.View, error) {
	token, _ := cmd.Flags().GetString("token")
	amount, _ := cmd.Flags().GetString("amount")
	useMax, _ := cmd.Flags().GetBool("max")
	if token == "" {
		return controller.View{}, errors.New("token is required")
	}

	if err := a.session.SelectToken(ctx, token); err != nil {
		return controller.View{}, err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Reading balances and allowance..."
	s.Start()
	defer s.Stop()

	view, err := waitView(ctx, a.session, settled)
	if err != nil {
		return view, fmt.Errorf("read token state: %w", err)
	}

	seq := view.Snapshot.Seq
	if useMax {
		if _, err := a.session.UseMax(ctx); err != nil {
			return view, err
		}
	} else if amount != "" {
		if err := a.session.SetAmount(ctx, amount); err != nil {
			return view, err
		}
	}
	if useMax || amount != "" {
		view, err = waitView(ctx, a.session, func(v controller.View) bool {
			return v.Snapshot.Seq > seq && settled(v)
		})
		if err != nil {
			return view, fmt.Errorf("read allowance: %w", err)
		}
	}
	return view, nil
}

func settled(v controller.View) bool {
	return v.Readiness.State != readiness.StateLoading || v.Readiness.Errors.Has(readiness.ReadFailure)
}

// waitView returns the first view satisfying cond.
func waitView(ctx context.Context, session *controller.Session, cond func(controller.View) bool) (controller.View, error) {
	changed := make(chan struct{}, 1)
	unsubscribe := session.Subscribe(func(controller.View) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		view, err := session.View(ctx)
		if err != nil {
			return view, err
		}
		if cond(view) {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

func intentContext(cmd *cobra.Command, parent context.Context) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func pendingOf(v controller.View, kind model.TxKind) *model.PendingTransaction {
	if kind == model.TxApprove {
		return v.Approval
	}
	return v.Swap
}

func printView(v controller.View) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("  %s (%s)", v.Token.Name, v.Token.Symbol)
	fmt.Println(strings.Repeat("=", 70))

	if !v.Connected {
		fmt.Printf("  Wallet:          %s\n", color.RedString("not connected"))
	} else {
		fmt.Printf("  Wallet:          %s\n", color.CyanString(v.Owner.Hex()))
	}
	fmt.Printf("  Token:           %s\n", color.HiBlackString(v.Token.Address.Hex()))

	res := v.Readiness
	if res.DisplayBalance != "" {
		fmt.Printf("  Balance:         %s %s\n", res.DisplayBalance, v.Token.Symbol)
	}
	if v.Snapshot.RawAllowance != nil && v.Snapshot.Decimals != nil {
		fmt.Printf("  Allowance:       %s %s\n", readiness.FormatRaw(v.Snapshot.RawAllowance, *v.Snapshot.Decimals), v.Token.Symbol)
	}
	if v.AmountText != "" {
		fmt.Printf("  Amount:          %s\n", v.AmountText)
	}
	if res.IsValidAmount && res.ReceiveAmount != "" {
		fmt.Printf("  You receive:     %s\n", color.GreenString(res.ReceiveAmount))
	}
	if v.StablecoinBalance != "" {
		fmt.Printf("  Stablecoin:      %s\n", v.StablecoinBalance)
	}
	fmt.Printf("  State:           %s\n", colorState(res.State))
	if v.Phase != controller.PhaseIdle {
		fmt.Printf("  Phase:           %s\n", v.Phase)
	}
	for _, kind := range res.Errors.Kinds() {
		fmt.Printf("  %s %s\n", color.RedString("!"), kind.Message())
	}
	if v.Hint != "" {
		fmt.Printf("  %s %s\n", color.YellowString("?"), v.Hint)
	}
	fmt.Println(strings.Repeat("=", 70))
}

func colorState(state readiness.State) string {
	switch state {
	case readiness.StateSwap, readiness.StateApprove:
		return color.GreenString(string(state))
	case readiness.StateLoading, readiness.StateIdle:
		return color.YellowString(string(state))
	default:
		return color.RedString(string(state))
	}
}
