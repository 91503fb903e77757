package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"aaudSwap/internal/contracts"
	"aaudSwap/internal/metrics"
	"aaudSwap/internal/model"
	"aaudSwap/internal/readiness"
	"aaudSwap/internal/submitter"
	"aaudSwap/internal/wallet"
)

var (
	ErrActionUnavailable  = errors.New("action not available")
	ErrTransactionPending = errors.New("transaction already pending")
	ErrNotConnected       = errors.New("wallet not connected")
	ErrUnknownToken       = errors.New("unknown token")
	ErrSessionClosed      = errors.New("session closed")
)

// Reader is the chain read side used by a Session.
type Reader interface {
	Subscribe(fn func(model.TokenSnapshot)) func()
	Snapshot(token, owner common.Address) model.TokenSnapshot
	Refresh(ctx context.Context, token, owner common.Address, fields model.Field) model.TokenSnapshot
}

// Submitter is the transaction side used by a Session.
type Submitter interface {
	Subscribe(fn func(model.PendingTransaction)) func()
	Submit(ctx context.Context, req submitter.Request) (model.PendingTransaction, error)
	Forget(kind model.TxKind, token common.Address)
}

// Config is the immutable session configuration.
type Config struct {
	Tokens       []model.Token
	SwapContract common.Address
	// Stablecoin is the token received from swaps; zero disables its
	// balance tracking.
	Stablecoin common.Address
}

// Session owns the swap state of one connected user. All state is confined
// to the goroutine running Run; exported methods post work to it and wait.
type Session struct {
	cfg       Config
	reader    Reader
	submitter Submitter
	wallet    wallet.Wallet
	metrics   *metrics.Metrics
	logger    *zap.Logger

	ops     chan func()
	stopped chan struct{}
	wg      sync.WaitGroup

	obsMu     sync.Mutex
	observers map[int]func(View)
	nextObs   int

	// Loop-owned state below.
	runCtx    context.Context
	owner     common.Address
	connected bool
	selected  bool
	intent    model.SwapIntent
	snapshot  model.TokenSnapshot
	stable    model.TokenSnapshot
	phases    map[common.Address]Phase
	pending   map[model.PendingKey]model.PendingTransaction
	inflight  map[model.PendingKey]bool
	message   string
}

// New builds a Session. Nothing happens until Run is called.
func New(cfg Config, reader Reader, sub Submitter, w wallet.Wallet, m *metrics.Metrics, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:       cfg,
		reader:    reader,
		submitter: sub,
		wallet:    w,
		metrics:   m,
		logger:    logger,
		ops:       make(chan func()),
		stopped:   make(chan struct{}),
		observers: make(map[int]func(View)),
		phases:    make(map[common.Address]Phase),
		pending:   make(map[model.PendingKey]model.PendingTransaction),
		inflight:  make(map[model.PendingKey]bool),
	}
}

// Run processes session work until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	s.runCtx = ctx
	unsubscribeReads := s.reader.Subscribe(func(snap model.TokenSnapshot) {
		s.post(func() { s.applySnapshot(snap) })
	})
	unsubscribeTxs := s.submitter.Subscribe(func(tx model.PendingTransaction) {
		s.post(func() { s.applyTransaction(tx) })
	})
	defer func() {
		unsubscribeReads()
		unsubscribeTxs()
		close(s.stopped)
		s.wg.Wait()
	}()

	s.syncOwner()
	s.refreshStable()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-s.ops:
			op()
		}
	}
}

// Tokens returns the configured token list.
func (s *Session) Tokens() []model.Token {
	return append([]model.Token(nil), s.cfg.Tokens...)
}

// Subscribe registers fn to receive the view after every change. fn runs on
// the session goroutine and must not call back into the Session.
func (s *Session) Subscribe(fn func(View)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// View returns the current view.
func (s *Session) View(ctx context.Context) (View, error) {
	var view View
	err := s.do(ctx, func() { view = s.view() })
	return view, err
}

// SelectToken selects a token by address or symbol and refreshes all of
// its fields. Pending transactions of other tokens are left alone.
func (s *Session) SelectToken(ctx context.Context, key string) error {
	token, ok := model.FindToken(s.cfg.Tokens, key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, key)
	}
	return s.do(ctx, func() {
		changed := !s.selected || s.intent.Token.Address != token.Address
		s.selected = true
		s.intent.Token = token
		if changed {
			s.snapshot = s.reader.Snapshot(token.Address, s.owner)
			s.message = ""
		}
		s.refresh(token.Address, model.FieldsAll)
		s.publish()
	})
}

// SetAmount replaces the amount text and re-reads the allowance.
func (s *Session) SetAmount(ctx context.Context, text string) error {
	return s.do(ctx, func() {
		s.intent.AmountText = text
		if s.selected {
			s.refresh(s.intent.Token.Address, model.FieldAllowance)
		}
		s.publish()
	})
}

// UseMax sets the amount to the full display balance of the selected token.
func (s *Session) UseMax(ctx context.Context) (string, error) {
	var (
		amount string
		err    error
	)
	doErr := s.do(ctx, func() {
		if !s.selected {
			err = fmt.Errorf("%w: no token selected", ErrActionUnavailable)
			return
		}
		full, ok := readiness.MaxAmount(s.snapshot)
		if !ok {
			err = fmt.Errorf("%w: balance unknown", ErrActionUnavailable)
			return
		}
		amount = full
		s.intent.AmountText = full
		s.refresh(s.intent.Token.Address, model.FieldAllowance)
		s.publish()
	})
	if doErr != nil {
		return "", doErr
	}
	return amount, err
}

// RequestApprove submits approve(swapContract, requiredRaw) for the
// selected token when the current evaluation offers it.
func (s *Session) RequestApprove(ctx context.Context) (model.PendingTransaction, error) {
	return s.request(ctx, model.TxApprove)
}

// RequestSwap submits swapToken(token, requiredRaw) when the current
// evaluation offers it.
func (s *Session) RequestSwap(ctx context.Context) (model.PendingTransaction, error) {
	return s.request(ctx, model.TxSwap)
}

// StopTracking forgets the pending transaction of kind for the selected
// token. The transaction itself keeps going on chain.
func (s *Session) StopTracking(ctx context.Context, kind model.TxKind) error {
	return s.do(ctx, func() {
		if !s.selected {
			return
		}
		token := s.intent.Token.Address
		key := model.PendingKey{Kind: kind, Token: token}
		delete(s.pending, key)
		delete(s.inflight, key)
		s.submitter.Forget(kind, token)
		if phaseKind(s.phases[token]) == kind {
			s.phases[token] = PhaseIdle
		}
		s.publish()
	})
}

// WalletChanged re-reads the wallet owner. A new owner drops the cached
// snapshot and refreshes the owner dependent fields.
func (s *Session) WalletChanged(ctx context.Context) error {
	return s.do(ctx, func() {
		if s.syncOwner() {
			s.refreshStable()
			if s.selected {
				s.refresh(s.intent.Token.Address, model.FieldsAll)
			}
		}
		s.publish()
	})
}

func (s *Session) request(ctx context.Context, kind model.TxKind) (model.PendingTransaction, error) {
	var (
		req submitter.Request
		err error
	)
	doErr := s.do(ctx, func() {
		req, err = s.prepare(kind)
		if err == nil {
			s.inflight[model.PendingKey{Kind: kind, Token: req.Token}] = true
			s.message = ""
		}
	})
	if doErr != nil {
		return model.PendingTransaction{}, doErr
	}
	if err != nil {
		return model.PendingTransaction{}, err
	}

	tx, err := s.submitter.Submit(ctx, req)
	if err != nil {
		key := model.PendingKey{Kind: kind, Token: req.Token}
		s.post(func() {
			delete(s.inflight, key)
			s.publish()
		})
		if errors.Is(err, submitter.ErrNotConnected) {
			return model.PendingTransaction{}, ErrNotConnected
		}
		return model.PendingTransaction{}, fmt.Errorf("submit %s: %w", kind, err)
	}
	return tx, nil
}

func (s *Session) prepare(kind model.TxKind) (submitter.Request, error) {
	if !s.connected {
		return submitter.Request{}, ErrNotConnected
	}
	if !s.selected {
		return submitter.Request{}, fmt.Errorf("%w: no token selected", ErrActionUnavailable)
	}
	token := s.intent.Token.Address
	if s.isPending(model.PendingKey{Kind: kind, Token: token}) {
		return submitter.Request{}, ErrTransactionPending
	}

	res := readiness.Evaluate(s.snapshot, s.intent, s.connected)
	switch kind {
	case model.TxApprove:
		if !res.CanApprove {
			return submitter.Request{}, fmt.Errorf("%w: %s", ErrActionUnavailable, res.State)
		}
		return submitter.Request{
			Kind:      kind,
			Token:     token,
			Target:    token,
			Method:    contracts.MethodApprove,
			Args:      []interface{}{s.cfg.SwapContract, res.RequiredRaw},
			RawAmount: res.RequiredRaw,
		}, nil
	case model.TxSwap:
		if !res.CanSwap {
			return submitter.Request{}, fmt.Errorf("%w: %s", ErrActionUnavailable, res.State)
		}
		return submitter.Request{
			Kind:      kind,
			Token:     token,
			Target:    s.cfg.SwapContract,
			Method:    contracts.MethodSwapToken,
			Args:      []interface{}{token, res.RequiredRaw},
			RawAmount: res.RequiredRaw,
		}, nil
	default:
		return submitter.Request{}, fmt.Errorf("unsupported transaction kind %q", kind)
	}
}

func (s *Session) isPending(key model.PendingKey) bool {
	if s.inflight[key] {
		return true
	}
	tx, ok := s.pending[key]
	return ok && tx.Status == model.TxSubmitted
}

func (s *Session) applySnapshot(snap model.TokenSnapshot) {
	if s.cfg.Stablecoin != (common.Address{}) && snap.Token == s.cfg.Stablecoin && snap.Owner == s.owner {
		if snap.Seq >= s.stable.Seq {
			s.stable = snap
			s.publish()
		}
	}

	if !s.selected || snap.Token != s.intent.Token.Address || snap.Owner != s.owner {
		if snap.Token != s.cfg.Stablecoin {
			s.discard(snap, "not current")
		}
		return
	}
	if snap.Seq < s.snapshot.Seq {
		s.discard(snap, "older than applied")
		return
	}
	s.snapshot = snap
	s.publish()
}

func (s *Session) discard(snap model.TokenSnapshot, reason string) {
	s.metrics.ObserveStale()
	s.logger.Debug("discarded snapshot",
		zap.String("token", snap.Token.Hex()),
		zap.String("owner", snap.Owner.Hex()),
		zap.Uint64("seq", snap.Seq),
		zap.String("reason", reason),
	)
}

func (s *Session) applyTransaction(tx model.PendingTransaction) {
	key := tx.Key()
	if prev, ok := s.pending[key]; ok && prev.Hash != tx.Hash && prev.SubmittedAt.After(tx.SubmittedAt) {
		return
	}
	if !s.inflight[key] {
		if _, ok := s.pending[key]; !ok && tx.Status != model.TxSubmitted {
			// Tracking was stopped before this update arrived.
			return
		}
	}
	delete(s.inflight, key)
	s.pending[key] = tx

	switch tx.Kind {
	case model.TxApprove:
		switch tx.Status {
		case model.TxSubmitted:
			s.phases[tx.Token] = PhaseApprovalPending
		case model.TxConfirmed:
			s.phases[tx.Token] = PhaseApprovalConfirmed
			s.message = "Approval confirmed. You can now swap."
			s.refresh(tx.Token, model.FieldAllowance)
		case model.TxFailed:
			s.phases[tx.Token] = PhaseApprovalFailed
		}
	case model.TxSwap:
		switch tx.Status {
		case model.TxSubmitted:
			s.phases[tx.Token] = PhaseSwapPending
		case model.TxConfirmed:
			s.phases[tx.Token] = PhaseSwapConfirmed
			s.intent.AmountText = ""
			s.message = "Swap confirmed."
			if tx.Swap != nil {
				s.message = fmt.Sprintf("Swap confirmed. Received %s raw units.", tx.Swap.AmountOut)
			}
			s.refresh(tx.Token, model.FieldBalance|model.FieldAllowance)
			s.refreshStable()
		case model.TxFailed:
			s.phases[tx.Token] = PhaseSwapFailed
		}
	}

	s.logger.Info("transaction update",
		zap.String("kind", string(tx.Kind)),
		zap.String("token", tx.Token.Hex()),
		zap.String("status", string(tx.Status)),
	)
	s.publish()
}

// syncOwner reads the wallet and reports whether the owner changed.
func (s *Session) syncOwner() bool {
	var (
		owner     common.Address
		connected bool
	)
	if s.wallet != nil {
		owner, connected = s.wallet.Owner()
	}
	if !connected {
		owner = common.Address{}
	}
	changed := owner != s.owner || connected != s.connected
	s.owner = owner
	s.connected = connected
	if changed {
		s.stable = model.TokenSnapshot{}
		if s.selected {
			s.snapshot = s.reader.Snapshot(s.intent.Token.Address, owner)
		}
	}
	return changed
}

func (s *Session) refresh(token common.Address, fields model.Field) {
	owner := s.owner
	ctx := s.runCtx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reader.Refresh(ctx, token, owner, fields)
	}()
}

func (s *Session) refreshStable() {
	if !s.connected || s.cfg.Stablecoin == (common.Address{}) {
		return
	}
	s.refresh(s.cfg.Stablecoin, model.FieldBalance)
}

func (s *Session) publish() {
	view := s.view()
	s.obsMu.Lock()
	observers := make([]func(View), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range observers {
		fn(view)
	}
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		fn()
		close(done)
	}
	select {
	case s.ops <- op:
	case <-s.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting; it is dropped once the session stops.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.stopped:
	}
}
