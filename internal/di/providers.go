package di

import (
	"context"
	"fmt"
	"time"

	"TradeReview/internal/domain/repository"
	domsvc "TradeReview/internal/domain/service"
	"TradeReview/internal/handler/api"
	internalrepo "TradeReview/internal/repository"
	"TradeReview/internal/service/ratelimit"
	"TradeReview/internal/services/auth"
	"TradeReview/internal/services/engine"
	"TradeReview/internal/services/instruments"
	"TradeReview/internal/usecase"
	"TradeReview/pkg/cache"
	pkgch "TradeReview/pkg/clickhouse"
	"TradeReview/pkg/config"
	xhttp "TradeReview/pkg/http"
	pkgkafka "TradeReview/pkg/kafka"
	"TradeReview/pkg/logger"
	"TradeReview/pkg/metrics"
	"TradeReview/pkg/postgres"
	"TradeReview/pkg/queue"
	"TradeReview/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when enabled. A nil cache means memory-only mode.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache layers a process-local cache over Redis, or runs memory-only.
func ProvideCache(rc *cache.RedisCache) (cache.Service, func()) {
	var svc cache.Service
	if rc != nil {
		svc = cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(2000), cache.WithLayeredMemoryTTL(5*time.Second))
	} else {
		svc = cache.NewMemoryCache(cache.WithMemoryMaxSize(5000), cache.WithMemoryCleanup(time.Minute))
	}
	// the layered cache closes only its own L1; the Redis client has its own cleanup
	return svc, func() { _ = svc.Close() }
}

// ProvidePostgresClient connects and migrates when the postgres backend is selected.
func ProvidePostgresClient(cfg *config.Config, l *logger.Logger) (*postgres.Client, func(), error) {
	if cfg.Storage.Backend != "postgres" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pg, err := postgres.NewClient(ctx, cfg.Storage.Postgres.URL,
		postgres.WithPoolSize(cfg.Storage.Postgres.MaxConns, cfg.Storage.Postgres.MinConns),
		postgres.WithMaxConnLifetime(cfg.Storage.Postgres.MaxConnLifetime),
	)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Postgres.Migrate {
		if err := pg.InitSchema(ctx, internalrepo.Schema); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		l.Info("postgres schema ready")
	}
	return pg, pg.Close, nil
}

// ProvideTradeLogRepository selects the trade log store.
func ProvideTradeLogRepository(pg *postgres.Client) repository.TradeLogRepository {
	if pg != nil {
		return internalrepo.NewPGTradeLogs(pg)
	}
	return internalrepo.NewMemoryTradeLogs()
}

// ProvideCreditStore selects the credit store. It always shares the trade log backend.
func ProvideCreditStore(pg *postgres.Client) repository.CreditStore {
	if pg != nil {
		return internalrepo.NewPGCredits(pg)
	}
	return internalrepo.NewMemoryCredits()
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled and ships the
// error digest through it.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Log.DigestTopic != "" {
		l.AttachDigest(&logger.DigestConfig{
			FlushInterval: cfg.Log.DigestWindow,
			Topic:         cfg.Log.DigestTopic,
			Publisher:     digestPublisher{producer},
		})
	}
	return producer, func() {
		l.DetachDigest()
		_ = producer.Close()
	}, nil
}

type digestPublisher struct {
	p *pkgkafka.Producer
}

func (d digestPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return d.p.Publish(ctx, topic, nil, payload)
}

// ProvideReviewEvents publishes lifecycle events to Kafka, or to the log without a broker.
func ProvideReviewEvents(cfg *config.Config, producer *pkgkafka.Producer, l *logger.Logger) repository.ReviewEventPublisher {
	if producer != nil {
		return internalrepo.NewKafkaReviewEvents(producer, cfg.Kafka.EventsTopic)
	}
	return internalrepo.NewLogReviewEvents(l)
}

// ProvideClickHouseClient creates a ClickHouse client and the attempts table when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.AttemptSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideAttemptSink writes settled attempts to ClickHouse, or to the log.
func ProvideAttemptSink(ch *pkgch.Client, l *logger.Logger) (repository.AttemptSink, func()) {
	var sink repository.AttemptSink
	if ch != nil {
		sink = internalrepo.NewCHAttemptSink(ch, l, 500, 5*time.Second)
	} else {
		sink = internalrepo.NewLogAttemptSink(l)
	}
	return sink, func() { _ = sink.Close() }
}

func ProvideStatusCache(cfg *config.Config, svc cache.Service, l *logger.Logger) repository.StatusCache {
	if cfg.Review.StatusCacheTTL <= 0 {
		return internalrepo.NopStatusCache{}
	}
	return internalrepo.NewStatusCache(svc, cfg.Review.StatusCacheTTL, l)
}

func ProvideInstruments(cfg *config.Config) (domsvc.InstrumentResolver, error) {
	snap, err := instruments.Load(cfg.Instruments.SnapshotPath)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func ProvideAnalysisEngine(cfg *config.Config) domsvc.AnalysisEngine {
	return engine.NewHTTPClient(engine.ClientConfig{
		BaseURL:    cfg.Engine.BaseURL,
		SubmitPath: cfg.Engine.SubmitPath,
		Timeout:    cfg.Engine.Timeout,
		Attempts:   cfg.Engine.SubmitAttempts,
	})
}

// ProvideCallbackSigner returns nil when no secret is configured, which disables the HTTP callback.
func ProvideCallbackSigner(cfg *config.Config) domsvc.CallbackSigner {
	if cfg.Auth.CallbackSecret == "" {
		return nil
	}
	return auth.NewCallbackTokens(cfg.Auth.CallbackSecret)
}

func ProvideAccountTokens(cfg *config.Config) *auth.AccountTokens {
	if cfg.Auth.JWTSecret == "" {
		return nil
	}
	return auth.NewAccountTokens(cfg.Auth.JWTSecret)
}

// ProvideQueue selects the dispatch queue. Redis keeps accepted work across restarts.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, l *logger.Logger) queue.Queue {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		MaxDepth:   cfg.Queue.MaxDepth,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	if cfg.Queue.Backend == "redis" && rc != nil {
		return queue.NewRedisQueue(l, qc, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":dispatch"))
	}
	return queue.NewMemoryQueue(l, qc)
}

func ProvideCreditLedger(cfg *config.Config, store repository.CreditStore, m repository.Metrics, l *logger.Logger) *usecase.CreditLedger {
	return usecase.NewCreditLedger(store, m, l,
		usecase.WithBonusPolicy(cfg.Credits.BonusPerAd, cfg.Credits.BonusTTL),
		usecase.WithProvisionOnDemand(cfg.Credits.ProvisionOnDemand),
	)
}

func ProvideReviewDispatcher(
	cfg *config.Config,
	repo repository.TradeLogRepository,
	ledger *usecase.CreditLedger,
	eng domsvc.AnalysisEngine,
	q queue.Queue,
	events repository.ReviewEventPublisher,
	sink repository.AttemptSink,
	sc repository.StatusCache,
	signer domsvc.CallbackSigner,
	m repository.Metrics,
	l *logger.Logger,
) (*usecase.ReviewDispatcher, func()) {
	d := usecase.NewReviewDispatcher(usecase.DispatcherDeps{
		Repo:    repo,
		Ledger:  ledger,
		Engine:  eng,
		Queue:   q,
		Events:  events,
		Sink:    sink,
		Cache:   sc,
		Signer:  signer,
		Metrics: m,
		Logger:  l,
	}, usecase.DispatcherConfig{
		Timeout:           cfg.Review.Timeout,
		RetryFromRejected: cfg.Review.RetryFromRejected,
		CallbackURL:       cfg.Engine.CallbackURL,
		CallbackTTL:       cfg.Auth.CallbackTTL,
	})
	return d, d.Close
}

func ProvideReviewProjector(repo repository.TradeLogRepository, sc repository.StatusCache, d *usecase.ReviewDispatcher, l *logger.Logger) *usecase.ReviewProjector {
	return usecase.NewReviewProjector(repo, sc, d.Policy(), l)
}

func ProvideReviewSweeper(cfg *config.Config, d *usecase.ReviewDispatcher, ledger *usecase.CreditLedger, repo repository.TradeLogRepository, svc cache.Service, l *logger.Logger) *usecase.ReviewSweeper {
	return usecase.NewReviewSweeper(d, ledger, repo, svc, cfg.Review.SweepBatch, l)
}

func ProvideTradeLogService(repo repository.TradeLogRepository, inst domsvc.InstrumentResolver, l *logger.Logger) *usecase.TradeLogService {
	return usecase.NewTradeLogService(repo, inst, l)
}

// ProvideKafkaConsumer creates the verdict consumer when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook{}, pkgkafka.LoggingHook{Log: l, Slow: time.Second}))
	return consumer, nil
}

func ProvideVerdictHandler(cfg *config.Config, d *usecase.ReviewDispatcher, l *logger.Logger) *usecase.VerdictHandler {
	return usecase.NewVerdictHandler(cfg.Kafka.VerdictsTopic, d, l)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
}

func ProvideRouter(
	cfg *config.Config,
	l *logger.Logger,
	trades *usecase.TradeLogService,
	d *usecase.ReviewDispatcher,
	p *usecase.ReviewProjector,
	ledger *usecase.CreditLedger,
	sweeper *usecase.ReviewSweeper,
	signer domsvc.CallbackSigner,
	accounts *auth.AccountTokens,
	limiter *ratelimit.Limiter,
) *api.Router {
	return &api.Router{
		TradeLogs:  api.NewTradeLogHandler(l, trades),
		Reviews:    api.NewReviewHandler(l, d, p),
		Credits:    api.NewCreditHandler(l, ledger),
		Callbacks:  api.NewCallbackHandler(l, signer, d),
		Admin:      api.NewAdminHandler(l, ledger, sweeper, cfg.Credits.BonusTTL),
		Accounts:   accounts,
		Limiter:    limiter,
		AdminToken: cfg.Auth.AdminToken,
	}
}

// ProvideApp assembles the long-running components.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	router *api.Router,
	repo repository.TradeLogRepository,
	q queue.Queue,
	consumer *pkgkafka.Consumer,
	verdicts *usecase.VerdictHandler,
	sweeper *usecase.ReviewSweeper,
	limiter *ratelimit.Limiter,
	m repository.Metrics,
) *server.App {
	c := server.Components{
		Handler: router,
		Checks:  map[string]xhttp.HealthCheck{"trade_logs": repo.Health},
		Queue:   q,
		Jobs: []server.Job{
			{Name: "review_sweep", Spec: cfg.Review.SweepSchedule, Run: sweeper.Run},
			{Name: "ratelimit_prune", Spec: "0 */5 * * * *", Run: func(context.Context) { limiter.Prune() }},
			{Name: "queue_depth", Spec: "*/15 * * * * *", Run: func(ctx context.Context) {
				if depth, err := q.Depth(ctx); err == nil {
					m.RecordQueueDepth(depth)
				}
			}},
		},
	}
	if consumer != nil {
		c.Consumer = consumer
		c.Handlers = []pkgkafka.MessageHandler{verdicts}
	}
	return server.New(cfg, l, c)
}

// Ops is the subset of the graph the admin CLI drives without serving traffic.
type Ops struct {
	Ledger   *usecase.CreditLedger
	Sweeper  *usecase.ReviewSweeper
	Accounts *auth.AccountTokens
	Log      *logger.Logger
}

func ProvideOps(ledger *usecase.CreditLedger, sweeper *usecase.ReviewSweeper, accounts *auth.AccountTokens, l *logger.Logger) *Ops {
	return &Ops{Ledger: ledger, Sweeper: sweeper, Accounts: accounts, Log: l}
}
