package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/fillguard/params"
	"github.com/uhyunpark/fillguard/pkg/api"
	"github.com/uhyunpark/fillguard/pkg/chain"
	"github.com/uhyunpark/fillguard/pkg/relay"
	"github.com/uhyunpark/fillguard/pkg/storage"
	"github.com/uhyunpark/fillguard/pkg/util"
	"github.com/uhyunpark/fillguard/pkg/validation"
)

func main() {
	configPath := flag.String("config", "", "TOML config file (optional)")
	envPath := flag.String("env", "", ".env file; defaults to ./.env")
	flag.Parse()

	// Load config: defaults < TOML file < .env < environment
	base := params.Default()
	if *configPath != "" {
		var err error
		if base, err = params.LoadFromFile(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	cfg, err := params.LoadFromEnv(*envPath, base)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (console, plus file when configured)
	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	store, err := storage.NewStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	var journal storage.Journal = storage.NewNopJournal()
	if cfg.Node.JournalPath != "" {
		fj, err := storage.NewFileJournal(cfg.Node.JournalPath)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Node.JournalPath, "err", err)
		}
		defer fj.Close()
		journal = fj
		sugar.Infow("journal_enabled", "path", cfg.Node.JournalPath)
	}

	// ---- State backend ----
	be, err := newBackend(ctx, cfg, store, journal, sugar)
	if err != nil {
		sugar.Fatalw("backend_init_failed", "backend", cfg.Validation.Backend, "err", err)
	}
	defer be.close()

	validator := validation.NewValidator(validation.Config{
		Verifier:        be.verifier,
		FillState:       be.fillState,
		Balances:        be.balances,
		Clock:           util.RealClock{},
		ProxyAddress:    cfg.ProxyAddress(),
		FeeTokenAddress: cfg.ZRXAddress(),
		Logger:          sugar,
	})

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		Validator: validator,
		State:     be.state,
		Verifier:  be.verifier,
		Store:     store,
		Settler:   be.settler,
		Journal:   journal,
		Origins:   cfg.Node.Origins,
		Logger:    sugar,
	})

	// ---- Relay (optional) ----
	var node *relay.Node
	if cfg.Relay.Enabled {
		node, err = relay.NewNode(ctx, relay.Config{
			ListenAddr: cfg.Relay.ListenAddr,
			Bootstrap:  cfg.Relay.Bootstrap,
			Topic:      cfg.Relay.Topic,
			Verifier:   be.verifier,
			FillState:  be.fillState,
			Pool:       relay.NewPool(cfg.Relay.PoolLimit),
			Logger:     sugar,
			OnOrder:    apiServer.OrderAdmitted,
		})
		if err != nil {
			sugar.Fatalw("relay_init_failed", "err", err)
		}
		defer node.Close()
		apiServer.AttachRelay(node)
		restorePool(ctx, node, store, sugar)
	}

	// Hook exchange events to the WebSocket feed and the relay pool
	be.start(ctx, func(ev chain.Event) {
		apiServer.PublishEvent(ev)
		if node != nil {
			evictSettled(ctx, node, be.fillState, ev, sugar)
		}
	})

	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"backend", cfg.Validation.Backend,
		"signature", cfg.Validation.Signature,
		"exchange", cfg.Chain.Exchange,
		"relay", cfg.Relay.Enabled,
		"api_addr", cfg.Node.APIAddr)

	// Pool maintenance loop
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Info("node_stopping")
			return
		case <-ticker.C:
			if node == nil {
				continue
			}
			dropped := node.Pool().PruneExpired(time.Now())
			if dropped > 0 {
				sugar.Infow("pool_pruned", "expired", dropped, "remaining", node.Pool().Len())
			}
		}
	}
}

// restorePool re-admits stored orders so a restarted node serves them again.
func restorePool(ctx context.Context, node *relay.Node, store *storage.Store, log *zap.SugaredLogger) {
	orders, err := store.LoadOrders()
	if err != nil {
		log.Warnw("pool_restore_failed", "err", err)
		return
	}
	restored := 0
	for _, so := range orders {
		if _, added, err := node.Admit(ctx, so); err == nil && added {
			restored++
		}
	}
	log.Infow("pool_restored", "orders", restored, "stored", len(orders))
}

// evictSettled drops a pooled order once nothing of it remains and tells
// peers to do the same.
func evictSettled(ctx context.Context, node *relay.Node, fill validation.FillStateOracle, ev chain.Event, log *zap.SugaredLogger) {
	switch ev.(type) {
	case *chain.LogFill, *chain.LogCancel:
	default:
		return
	}
	hash := ev.Hash()
	so, ok := node.Pool().Get(hash)
	if !ok {
		return
	}
	unavailable, err := fill.UnavailableTakerAmount(ctx, hash, nil)
	if err != nil {
		log.Warnw("evict_check_failed", "order_hash", hash.Hex(), "err", err)
		return
	}
	if unavailable.Cmp(so.TakerTokenAmount) < 0 {
		return
	}
	if err := node.PublishCancel(ctx, hash); err != nil {
		log.Warnw("cancel_publish_failed", "order_hash", hash.Hex(), "err", err)
	}
}
