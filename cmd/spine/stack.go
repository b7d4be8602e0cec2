package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/audit"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/config"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/confirm"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/flow"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/guard"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/ipc"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/metrics"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/orchestrator"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/policy"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/spine"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/store"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/tools"
)

const redisPrefix = "spine:"

// stack is the fully wired orchestrator with everything it owns.
type stack struct {
	orch     *orchestrator.Orchestrator
	chain    *audit.Chain
	runs     ipc.RunLister
	registry *prometheus.Registry
	closers  []func() error
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// handler builds the HTTP handler for the stack.
func (s *stack) handler(c *config.Config, logger *zap.Logger) *ipc.Handler {
	return &ipc.Handler{
		Orchestrator: s.orch,
		Audit:        s.chain,
		Runs:         s.runs,
		Auth:         ipc.NewAuthenticator(c.Auth.JWTSecret, c.Auth.Issuer),
		Logger:       logger,
	}
}

func buildStack(ctx context.Context, c *config.Config, logger *zap.Logger) (_ *stack, err error) {
	s := &stack{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(s.registry)

	// Audit chain and run history.
	var (
		auditStore audit.Store
		recorder   orchestrator.RunRecorder
	)
	switch c.Audit.Driver {
	case config.DriverSQLite, config.DriverPostgres:
		db, dialect, err := openDB(ctx, c.Audit)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		auditStore = store.NewAuditStore(db, dialect)
		runs := store.NewRunStore(db, dialect)
		s.runs, recorder = runs, runs
	default:
		auditStore = audit.NewMemoryStore()
	}
	s.chain = audit.NewChain(auditStore, logger).WithObserver(m.AuditAppend)

	// Redis is shared by the confirmation store and the limiter.
	var rdb *redis.Client
	if c.Confirm.Driver == config.DriverRedis || c.RateLimit.Driver == config.DriverRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		s.closers = append(s.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", c.Redis.Addr, err)
		}
	}

	var confirms confirm.Store = confirm.NewMemoryStore()
	if c.Confirm.Driver == config.DriverRedis {
		confirms = confirm.NewRedisStore(rdb, redisPrefix+"confirm:")
	}

	limits := guard.Config{RatePerMinute: c.RateLimit.PerMinute, Burst: c.RateLimit.Burst}
	var limiter guard.Limiter = guard.NewMemoryLimiter(limits)
	if c.RateLimit.Driver == config.DriverRedis {
		limiter = guard.NewRedisLimiter(rdb, redisPrefix+"rl:", limits)
	}

	// Tools, policy and flow engine.
	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, tools.NewMemoryBackend()); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	gate, err := policy.NewEngine(c.PolicyConfig())
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	engine := flow.NewEngine(gate, reg, s.chain, confirms, logger,
		flow.WithRecorder(m),
		flow.WithConfirmTTL(c.Confirm.TTL))

	s.orch, err = orchestrator.New(orchestrator.Deps{
		Spines:  spine.Defaults(),
		Tools:   reg,
		Flow:    engine,
		Guard:   guard.New(limiter, logger),
		Runs:    recorder,
		Metrics: m,
		Logger:  logger,
		TopN:    c.Router.TopN,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openDB(ctx context.Context, c config.AuditConfig) (*sql.DB, store.Dialect, error) {
	if c.Driver == config.DriverPostgres {
		db, err := store.NewPostgres(ctx, c.DSN)
		return db, store.DialectPostgres, err
	}
	db, err := store.NewDB(c.DSN)
	return db, store.DialectSQLite, err
}
