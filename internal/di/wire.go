//go:build wireinject
// +build wireinject

package di

import (
	"TradeReview/pkg/config"
	"TradeReview/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvidePostgresClient,
		ProvideKafkaProducer,
		ProvideClickHouseClient,

		// Repositories and adapters
		ProvideTradeLogRepository,
		ProvideCreditStore,
		ProvideReviewEvents,
		ProvideAttemptSink,
		ProvideStatusCache,
		ProvideInstruments,
		ProvideAnalysisEngine,
		ProvideCallbackSigner,
		ProvideAccountTokens,
		ProvideQueue,

		// Use cases
		ProvideCreditLedger,
		ProvideReviewDispatcher,
		ProvideReviewProjector,
		ProvideReviewSweeper,
		ProvideTradeLogService,
		ProvideVerdictHandler,
		ProvideKafkaConsumer,

		// Application server
		ProvideRateLimiter,
		ProvideRouter,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeOps wires the ledger and the sweeper for one-shot operator commands.
func InitializeOps(cfg *config.Config) (*Ops, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisCache,
		ProvideCache,
		ProvidePostgresClient,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideTradeLogRepository,
		ProvideCreditStore,
		ProvideReviewEvents,
		ProvideAttemptSink,
		ProvideStatusCache,
		ProvideAnalysisEngine,
		ProvideCallbackSigner,
		ProvideAccountTokens,
		ProvideQueue,
		ProvideCreditLedger,
		ProvideReviewDispatcher,
		ProvideReviewSweeper,
		ProvideOps,
	)
	return nil, nil, nil
}
