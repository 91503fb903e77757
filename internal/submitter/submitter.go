package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"aaudSwap/internal/contracts"
	"aaudSwap/internal/metrics"
	"aaudSwap/internal/model"
	"aaudSwap/internal/wallet"
)

// ErrNotConnected is returned when no wallet owner is available.
var ErrNotConnected = errors.New("wallet not connected")

// Backend is the chain access the submitter needs. *chain.Client
// satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds submitter settings.
type Config struct {
	// SwapContract is used to find the TokenSwapped event in receipts.
	SwapContract common.Address
	PollInterval time.Duration
	// GasLimit overrides estimation when non-zero.
	GasLimit uint64
	// GasPrice overrides the node suggestion when non-nil.
	GasPrice *big.Int
}

// Request describes one state-changing call.
type Request struct {
	Kind   model.TxKind
	Token  common.Address
	Target common.Address
	Method string
	Args   []interface{}
	// RawAmount is the token amount the call moves or authorizes.
	RawAmount *big.Int
}

type tracked struct {
	id     uint64
	tx     model.PendingTransaction
	cancel context.CancelFunc
}

// Submitter sends approve and swap transactions and follows them until a
// receipt arrives. At most one transaction per (kind, token) is observed;
// a newer submission replaces the older one, which keeps running on chain
// unobserved.
type Submitter struct {
	cfg     Config
	backend Backend
	signer  wallet.Signer
	metrics *metrics.Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	nextID  uint64
	tracked map[model.PendingKey]*tracked

	obsMu     sync.Mutex
	observers map[int]func(model.PendingTransaction)
	nextObs   int

	now func() time.Time
}

// New builds a Submitter. Close stops all receipt watchers.
func New(cfg Config, backend Backend, signer wallet.Signer, m *metrics.Metrics, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Submitter{
		cfg:       cfg,
		backend:   backend,
		signer:    signer,
		metrics:   m,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		tracked:   make(map[model.PendingKey]*tracked),
		observers: make(map[int]func(model.PendingTransaction)),
		now:       time.Now,
	}
}

// Subscribe registers fn for every status change, including the initial
// Submitted or Failed status of a submission.
func (s *Submitter) Subscribe(fn func(model.PendingTransaction)) func() {
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

// Submit signs and broadcasts req and returns without waiting for it to be
// mined. Malformed requests return an error; a wallet or node rejection
// returns a transaction already in the Failed status.
func (s *Submitter) Submit(ctx context.Context, req Request) (model.PendingTransaction, error) {
	parsed, err := abiFor(req.Kind)
	if err != nil {
		return model.PendingTransaction{}, err
	}
	data, err := parsed.Pack(req.Method, req.Args...)
	if err != nil {
		return model.PendingTransaction{}, fmt.Errorf("pack %s: %w", req.Method, err)
	}
	if s.signer == nil {
		return model.PendingTransaction{}, ErrNotConnected
	}
	from, ok := s.signer.Owner()
	if !ok {
		return model.PendingTransaction{}, ErrNotConnected
	}

	now := s.now()
	pending := model.PendingTransaction{
		Kind:        req.Kind,
		Token:       req.Token,
		Status:      model.TxSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if req.RawAmount != nil {
		pending.RawAmount = new(big.Int).Set(req.RawAmount)
	}

	tx, err := s.buildTx(ctx, from, req.Target, data)
	if err == nil {
		tx, err = s.signer.SignTx(tx)
		if err != nil {
			err = fmt.Errorf("sign transaction: %w", err)
		}
	}
	if err == nil {
		pending.Hash = tx.Hash()
		if sendErr := s.backend.SendTransaction(ctx, tx); sendErr != nil {
			err = fmt.Errorf("send transaction: %w", sendErr)
		}
	}
	s.metrics.ObserveSubmit(string(req.Kind))

	if err != nil {
		s.logger.Warn("transaction rejected",
			zap.String("kind", string(req.Kind)),
			zap.String("token", req.Token.Hex()),
			zap.Error(err),
		)
		pending.Status = model.TxFailed
		pending.Err = err.Error()
		s.track(pending, nil)
		s.metrics.ObserveResolved(string(req.Kind), string(model.TxFailed), 0)
		s.emit(pending)
		return pending, nil
	}

	s.logger.Info("transaction submitted",
		zap.String("kind", string(req.Kind)),
		zap.String("token", req.Token.Hex()),
		zap.String("hash", pending.Hash.Hex()),
	)

	watchCtx, cancel := context.WithCancel(s.ctx)
	entry := s.track(pending, cancel)
	s.emit(pending)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(watchCtx, entry.id, pending)
	}()

	return pending, nil
}

// Pending returns the observed transaction of kind for token.
func (s *Submitter) Pending(kind model.TxKind, token common.Address) (model.PendingTransaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tracked[model.PendingKey{Kind: kind, Token: token}]
	if !ok {
		return model.PendingTransaction{}, false
	}
	return entry.tx, true
}

// Forget stops observing the transaction of kind for token. The
// transaction itself is not cancelled.
func (s *Submitter) Forget(kind model.TxKind, token common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := model.PendingKey{Kind: kind, Token: token}
	if entry, ok := s.tracked[key]; ok {
		if entry.cancel != nil {
			entry.cancel()
		}
		delete(s.tracked, key)
	}
}

// Close stops every watcher and waits for them to exit.
func (s *Submitter) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Submitter) buildTx(ctx context.Context, from, to common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice := s.cfg.GasPrice
	if gasPrice == nil {
		gasPrice, err = s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("get gas price: %w", err)
		}
	}

	gasLimit := s.cfg.GasLimit
	if gasLimit == 0 {
		estimated, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = estimated * 120 / 100
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

// watch polls for the receipt of tx. There is no deadline: a transaction
// that is never mined stays Submitted until superseded or forgotten.
func (s *Submitter) watch(ctx context.Context, id uint64, tx model.PendingTransaction) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, tx.Hash)
		if err == nil && receipt != nil {
			s.resolve(id, tx, receipt)
			return
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			s.logger.Debug("receipt poll failed", zap.String("hash", tx.Hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Submitter) resolve(id uint64, tx model.PendingTransaction, receipt *types.Receipt) {
	tx.UpdatedAt = s.now()
	if receipt.BlockNumber != nil {
		tx.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		tx.Status = model.TxConfirmed
		if tx.Kind == model.TxSwap {
			if event, ok := contracts.FindSwapEvent(receipt, s.cfg.SwapContract); ok {
				tx.Swap = &event
			}
		}
	} else {
		tx.Status = model.TxFailed
		tx.Err = "transaction reverted"
	}

	s.mu.Lock()
	entry, ok := s.tracked[tx.Key()]
	current := ok && entry.id == id
	if current {
		entry.tx = tx
	}
	s.mu.Unlock()
	if !current {
		return
	}

	s.metrics.ObserveResolved(string(tx.Kind), string(tx.Status), tx.UpdatedAt.Sub(tx.SubmittedAt))
	s.logger.Info("transaction resolved",
		zap.String("kind", string(tx.Kind)),
		zap.String("hash", tx.Hash.Hex()),
		zap.String("status", string(tx.Status)),
		zap.Uint64("block", tx.BlockNumber),
	)
	s.emit(tx)
}

func (s *Submitter) track(tx model.PendingTransaction, cancel context.CancelFunc) *tracked {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tx.Key()
	if prev, ok := s.tracked[key]; ok && prev.cancel != nil {
		prev.cancel()
		s.logger.Debug("superseded transaction", zap.String("hash", prev.tx.Hash.Hex()))
	}
	s.nextID++
	entry := &tracked{id: s.nextID, tx: tx, cancel: cancel}
	s.tracked[key] = entry
	return entry
}

func (s *Submitter) emit(tx model.PendingTransaction) {
	s.obsMu.Lock()
	observers := make([]func(model.PendingTransaction), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range observers {
		fn(tx)
	}
}

func abiFor(kind model.TxKind) (abi.ABI, error) {
	switch kind {
	case model.TxApprove:
		return contracts.ERC20ABI()
	case model.TxSwap:
		return contracts.TokenSwapABI()
	default:
		return abi.ABI{}, fmt.Errorf("unsupported transaction kind %q", kind)
	}
}
