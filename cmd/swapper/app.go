package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aaudSwap/internal/chain"
	"aaudSwap/internal/config"
	"aaudSwap/internal/contracts"
	"aaudSwap/internal/controller"
	"aaudSwap/internal/journal"
	"aaudSwap/internal/metrics"
	"aaudSwap/internal/model"
	"aaudSwap/internal/reader"
	"aaudSwap/internal/submitter"
	"aaudSwap/internal/wallet"
)

// app wires one session for the lifetime of a command.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	client     *chain.Client
	reader     *reader.Reader
	submitter  *submitter.Submitter
	session    *controller.Session
	stablecoin common.Address

	ctx     context.Context
	stop    context.CancelFunc
	done    chan error
	metrics *http.Server
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{cfg: cfg, logger: logger, ctx: ctx, stop: stop}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	client, err := chain.NewClient(a.ctx, a.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client

	chainID, err := client.ChainID(a.ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if chainID.Uint64() != a.cfg.ChainID {
		return fmt.Errorf("rpc serves chain %d, configured %s (%d)", chainID.Uint64(), config.ChainName(a.cfg.ChainID), a.cfg.ChainID)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		a.metrics = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	signer, err := newWallet(a.cfg, new(big.Int).SetUint64(a.cfg.ChainID))
	if err != nil {
		return err
	}

	a.stablecoin = a.cfg.Stablecoin
	if a.stablecoin == (common.Address{}) {
		a.stablecoin, err = contracts.StablecoinAddress(a.ctx, client, a.cfg.SwapContract)
		if err != nil {
			return fmt.Errorf("read stablecoin address: %w", err)
		}
	}

	a.reader = reader.New(reader.Config{
		SwapContract: a.cfg.SwapContract,
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
	}, client, m, a.logger)

	a.submitter = submitter.New(submitter.Config{
		SwapContract: a.cfg.SwapContract,
		PollInterval: a.cfg.PollInterval,
		GasLimit:     a.cfg.GasLimit,
	}, client, signer, m, a.logger)

	if a.cfg.Journal != "" {
		sink := journal.NewFile(a.cfg.Journal)
		a.submitter.Subscribe(func(tx model.PendingTransaction) {
			if err := sink.Record(tx); err != nil {
				a.logger.Warn("journal write failed", zap.Error(err))
			}
		})
	}

	a.session = controller.New(controller.Config{
		Tokens:       a.cfg.Tokens,
		SwapContract: a.cfg.SwapContract,
		Stablecoin:   a.stablecoin,
	}, a.reader, a.submitter, signer, m, a.logger)

	a.done = make(chan error, 1)
	go func() {
		a.done <- a.session.Run(a.ctx)
	}()

	a.logger.Info("session start",
		zap.String("rpc", a.cfg.RPCURL),
		zap.String("chain", config.ChainName(a.cfg.ChainID)),
		zap.String("swap_contract", a.cfg.SwapContract.Hex()),
		zap.String("stablecoin", a.stablecoin.Hex()),
		zap.Int("tokens", len(a.cfg.Tokens)),
	)
	return nil
}

// Close stops the session and releases the RPC connection.
func (a *app) Close() {
	a.stop()
	if a.done != nil {
		<-a.done
	}
	if a.submitter != nil {
		a.submitter.Close()
	}
	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(shutdownCtx)
		cancel()
	}
	if a.client != nil {
		a.client.Close()
	}
	_ = a.logger.Sync()
}

func newWallet(cfg config.Config, chainID *big.Int) (wallet.Signer, error) {
	switch {
	case cfg.PrivateKey != "":
		w, err := wallet.NewKeyWallet(cfg.PrivateKey, chainID)
		if err != nil {
			return nil, err
		}
		return w, nil
	case cfg.Owner != "":
		return wallet.NewWatchWallet(common.HexToAddress(cfg.Owner)), nil
	default:
		return wallet.NewWatchWallet(common.Address{}), nil
	}
}
