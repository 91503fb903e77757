package reader

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"aaudSwap/internal/contracts"
	"aaudSwap/internal/metrics"
	"aaudSwap/internal/model"
)

// Config holds the immutable settings of a Reader.
type Config struct {
	// SwapContract is the spender for allowance reads and the whitelist
	// authority.
	SwapContract common.Address
	MaxRetries   int
	RetryBackoff time.Duration
}

// Reader issues read-only queries against token contracts and the swap
// contract. Each snapshot field is cached and refreshed independently;
// refreshes happen only when asked for.
type Reader struct {
	cfg     Config
	caller  contracts.Caller
	logger  *zap.Logger
	metrics *metrics.Metrics

	decimals    *cache[common.Address, uint8]
	whitelisted *cache[common.Address, bool]
	balances    *cache[model.SnapshotKey, *big.Int]
	allowances  *cache[model.SnapshotKey, *big.Int]
	failed      *cache[model.SnapshotKey, model.Field]

	seqMu   sync.Mutex
	clock   uint64
	stamps  map[model.SnapshotKey]uint64
	written map[fieldKey]uint64

	// settleMu makes building a merged snapshot and stamping it atomic.
	settleMu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]func(model.TokenSnapshot)
	nextObs   int
}

type fieldKey struct {
	key   model.SnapshotKey
	field model.Field
}

// New builds a Reader.
func New(cfg Config, caller contracts.Caller, m *metrics.Metrics, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		cfg:         cfg,
		caller:      caller,
		logger:      logger,
		metrics:     m,
		decimals:    newCache[common.Address, uint8](),
		whitelisted: newCache[common.Address, bool](),
		balances:    newCache[model.SnapshotKey, *big.Int](),
		allowances:  newCache[model.SnapshotKey, *big.Int](),
		failed:      newCache[model.SnapshotKey, model.Field](),
		stamps:      make(map[model.SnapshotKey]uint64),
		written:     make(map[fieldKey]uint64),
		observers:   make(map[int]func(model.TokenSnapshot)),
	}
}

// Subscribe registers fn to receive every snapshot produced by Refresh.
// The returned func removes the registration.
func (r *Reader) Subscribe(fn func(model.TokenSnapshot)) func() {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

// Snapshot returns the cached values for (token, owner) without I/O. Its
// Seq is the stamp of the last completed Refresh of the key.
func (r *Reader) Snapshot(token, owner common.Address) model.TokenSnapshot {
	key := model.SnapshotKey{Token: token, Owner: owner}
	snap := model.TokenSnapshot{Token: token, Owner: owner}

	if decimals, ok := r.decimals.Get(token); ok {
		snap.Decimals = &decimals
	}
	if whitelisted, ok := r.whitelisted.Get(token); ok {
		snap.Whitelisted = &whitelisted
	}
	if owner != (common.Address{}) {
		if balance, ok := r.balances.Get(key); ok {
			snap.RawBalance = new(big.Int).Set(balance)
		}
		if allowance, ok := r.allowances.Get(key); ok {
			snap.RawAllowance = new(big.Int).Set(allowance)
		}
	}
	snap.Failed, _ = r.failed.Get(key)

	r.seqMu.Lock()
	snap.Seq = r.stamps[key]
	r.seqMu.Unlock()

	return snap
}

// Refresh re-reads fields of (token, owner) concurrently, then emits and
// returns the merged snapshot. Owner dependent fields are skipped while
// owner is the zero address. Decimals and whitelist status are only read
// when requested or not yet cached.
//
// The emitted snapshot is built after all writes of this call and stamped
// on completion, so a later stamp always carries at least as much as an
// earlier one, whatever order the requests were issued in.
func (r *Reader) Refresh(ctx context.Context, token, owner common.Address, fields model.Field) model.TokenSnapshot {
	start := time.Now()
	key := model.SnapshotKey{Token: token, Owner: owner}
	seq := r.nextSeq()

	if owner == (common.Address{}) {
		fields &^= model.FieldsOwner
	}
	if _, ok := r.decimals.Get(token); !ok {
		fields |= model.FieldDecimals
	}
	if _, ok := r.whitelisted.Get(token); !ok {
		fields |= model.FieldWhitelisted
	}

	var wg conc.WaitGroup
	for _, field := range []model.Field{model.FieldBalance, model.FieldDecimals, model.FieldAllowance, model.FieldWhitelisted} {
		if !fields.Has(field) {
			continue
		}
		field := field
		wg.Go(func() {
			r.refreshField(ctx, key, field, seq)
		})
	}
	wg.Wait()

	snap := r.settle(token, owner)
	r.metrics.ObserveRefresh(time.Since(start))
	r.emit(snap)
	return snap
}

// TotalSwapped reads the cumulative raw amount swapped for token.
func (r *Reader) TotalSwapped(ctx context.Context, token common.Address) (*big.Int, error) {
	var total *big.Int
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		total, err = contracts.TotalSwapped(ctx, r.caller, r.cfg.SwapContract, token)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("total swapped %s: %w", token.Hex(), err)
	}
	return total, nil
}

// TokenInfo reads on-chain name, symbol and decimals of token.
func (r *Reader) TokenInfo(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	var meta model.TokenMeta
	seq := r.nextSeq()
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		meta, err = contracts.FetchTokenMeta(ctx, r.caller, token, r.logger)
		return err
	})
	if err != nil {
		return meta, fmt.Errorf("token info %s: %w", token.Hex(), err)
	}
	if r.claimWrite(fieldKey{key: model.SnapshotKey{Token: token}, field: model.FieldDecimals}, seq) {
		r.decimals.Set(token, meta.Decimals)
	}
	return meta, nil
}

func (r *Reader) refreshField(ctx context.Context, key model.SnapshotKey, field model.Field, seq uint64) {
	var (
		value interface{}
		err   error
	)
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var callErr error
		value, callErr = r.read(ctx, key, field)
		if callErr != nil {
			r.logger.Debug("read attempt failed",
				zap.String("token", key.Token.Hex()),
				zap.Stringer("field", field),
				zap.Error(callErr),
			)
		}
		return callErr
	})
	r.metrics.ObserveRead(field.String(), err)

	storeKey := key
	if field == model.FieldDecimals || field == model.FieldWhitelisted {
		storeKey.Owner = common.Address{}
	}
	if !r.claimWrite(fieldKey{key: storeKey, field: field}, seq) {
		return
	}

	if err != nil {
		r.logger.Warn("read failed",
			zap.String("token", key.Token.Hex()),
			zap.String("owner", key.Owner.Hex()),
			zap.Stringer("field", field),
			zap.Error(err),
		)
		r.clear(key, field)
		r.markFailed(key, field, true)
		return
	}

	switch field {
	case model.FieldBalance:
		r.balances.Set(key, value.(*big.Int))
	case model.FieldAllowance:
		r.allowances.Set(key, value.(*big.Int))
	case model.FieldDecimals:
		r.decimals.Set(key.Token, value.(uint8))
	case model.FieldWhitelisted:
		r.whitelisted.Set(key.Token, value.(bool))
	}
	r.markFailed(key, field, false)
}

func (r *Reader) read(ctx context.Context, key model.SnapshotKey, field model.Field) (interface{}, error) {
	switch field {
	case model.FieldBalance:
		return contracts.BalanceOf(ctx, r.caller, key.Token, key.Owner)
	case model.FieldAllowance:
		return contracts.Allowance(ctx, r.caller, key.Token, key.Owner, r.cfg.SwapContract)
	case model.FieldDecimals:
		return contracts.Decimals(ctx, r.caller, key.Token)
	case model.FieldWhitelisted:
		return contracts.IsTokenWhitelisted(ctx, r.caller, r.cfg.SwapContract, key.Token)
	default:
		return nil, fmt.Errorf("unsupported field %d", field)
	}
}

// A failed read is unknown, never zero.
func (r *Reader) clear(key model.SnapshotKey, field model.Field) {
	switch field {
	case model.FieldBalance:
		r.balances.Delete(key)
	case model.FieldAllowance:
		r.allowances.Delete(key)
	case model.FieldDecimals:
		r.decimals.Delete(key.Token)
	case model.FieldWhitelisted:
		r.whitelisted.Delete(key.Token)
	}
}

func (r *Reader) markFailed(key model.SnapshotKey, field model.Field, failed bool) {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()

	current, _ := r.failed.Get(key)
	if failed {
		current |= field
	} else {
		current &^= field
	}
	r.failed.Set(key, current)
}

// nextSeq draws from one clock shared by all keys, so sequence numbers
// also order writes to owner independent fields.
func (r *Reader) nextSeq() uint64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.clock++
	return r.clock
}

// settle builds the merged snapshot of (token, owner) and stamps it with a
// fresh tick of the clock.
func (r *Reader) settle(token, owner common.Address) model.TokenSnapshot {
	r.settleMu.Lock()
	defer r.settleMu.Unlock()

	snap := r.Snapshot(token, owner)
	r.seqMu.Lock()
	r.clock++
	r.stamps[snap.Key()] = r.clock
	snap.Seq = r.clock
	r.seqMu.Unlock()
	return snap
}

// claimWrite reports whether a result of request seq may overwrite the
// cached field. Results of older requests never replace newer ones.
func (r *Reader) claimWrite(key fieldKey, seq uint64) bool {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	if r.written[key] > seq {
		return false
	}
	r.written[key] = seq
	return true
}

func (r *Reader) emit(snap model.TokenSnapshot) {
	r.obsMu.Lock()
	observers := make([]func(model.TokenSnapshot), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.obsMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}
