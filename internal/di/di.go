// Package di wires repositories, services and handlers into a container.
package di

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/config"
	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/lock"
	"github.com/mosaicfin/atrader/internal/modules/agents"
	"github.com/mosaicfin/atrader/internal/modules/indicators"
	"github.com/mosaicfin/atrader/internal/modules/llm"
	"github.com/mosaicfin/atrader/internal/modules/market"
	"github.com/mosaicfin/atrader/internal/modules/prompts"
	"github.com/mosaicfin/atrader/internal/modules/tasks"
	"github.com/mosaicfin/atrader/internal/modules/trading"
	"github.com/mosaicfin/atrader/internal/server"
)

// Container holds every wired component of the orchestrator.
type Container struct {
	CoreDB   *database.DB
	MarketDB *database.DB
	ConfigDB *database.DB
	Redis    *redis.Client

	AgentService *agents.Service
	MarketSvc    *market.Service
	QuoteSvc     *market.QuoteService
	Executor     *tasks.Executor
	Scheduler    *tasks.Scheduler
	Server       *server.Server
}

// Wire builds the full dependency graph: databases, redis, repositories,
// services, the task executor/scheduler, and the HTTP server.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	coreDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "core.db"),
		Profile: database.ProfileLedger,
		Name:    "core",
	})
	if err != nil {
		return nil, fmt.Errorf("open core db: %w", err)
	}
	marketDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "market.db"),
		Profile: database.ProfileCache,
		Name:    "market",
	})
	if err != nil {
		return nil, fmt.Errorf("open market db: %w", err)
	}
	configDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		return nil, fmt.Errorf("open config db: %w", err)
	}

	for _, db := range []*database.DB{coreDB, marketDB, configDB} {
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate %s db: %w", db.Name(), err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Repositories.
	agentRepo := agents.NewAgentRepository(coreDB, log)
	positionRepo := agents.NewPositionRepository(coreDB, log)
	orderRepo := agents.NewOrderRepository(coreDB, log)
	txRepo := agents.NewTransactionRepository(coreDB, log)
	decisionLogRepo := agents.NewDecisionLogRepository(coreDB, log)
	llmLogRepo := llm.NewLogRepository(coreDB, log)

	quoteRepo := market.NewQuoteRepository(marketDB, log)
	marketDataRepo := market.NewMarketDataRepository(marketDB, log)
	sentimentRepo := market.NewSentimentRepository(marketDB, log)

	providerRepo := llm.NewProviderRepository(configDB, log)
	templateRepo := prompts.NewRepository(configDB, log)
	taskRepo := tasks.NewTaskRepository(configDB, log)
	taskLogRepo := tasks.NewTaskLogRepository(configDB, log)

	// Services.
	collector := market.NewCollector(cfg.QuoteAPIURL, log)
	bundleCache := market.NewBundleCache(redisClient, log)
	quoteSvc := market.NewQuoteService(collector, quoteRepo, log)
	marketSvc := market.NewService(collector, quoteSvc, marketDataRepo, sentimentRepo, bundleCache, log)
	indicatorSvc := indicators.NewService(quoteRepo, log)
	processor := trading.NewProcessor(log)
	promptMgr := prompts.NewManager(log)
	locker := lock.NewRedisLocker(redisClient, log)

	agentSvc := agents.NewService(agentRepo, positionRepo, orderRepo, txRepo, decisionLogRepo,
		providerRepo, llmLogRepo, templateRepo, promptMgr,
		marketSvc, quoteRepo, indicatorSvc,
		processor, locker, time.Duration(cfg.LLMTimeoutSec)*time.Second, log)

	executor := tasks.NewExecutor(taskRepo, taskLogRepo, agentSvc, quoteSvc, marketSvc, log)
	scheduler := tasks.NewScheduler(taskRepo, executor, log)

	// HTTP surface.
	srv := server.New(server.Config{
		Log:              log,
		Cfg:              cfg,
		CoreDB:           coreDB,
		MarketDB:         marketDB,
		ConfigDB:         configDB,
		AgentHandlers:    agents.NewHandlers(agentSvc, log),
		TemplateHandlers: prompts.NewHandlers(templateRepo, promptMgr, log),
		ProviderHandlers: llm.NewHandlers(providerRepo, log),
		MarketHandlers:   market.NewHandlers(marketSvc, quoteRepo, quoteSvc, log),
		TaskHandlers:     tasks.NewHandlers(taskRepo, taskLogRepo, executor, scheduler, log),
	})

	return &Container{
		CoreDB:       coreDB,
		MarketDB:     marketDB,
		ConfigDB:     configDB,
		Redis:        redisClient,
		AgentService: agentSvc,
		MarketSvc:    marketSvc,
		QuoteSvc:     quoteSvc,
		Executor:     executor,
		Scheduler:    scheduler,
		Server:       srv,
	}, nil
}

// Close releases every held resource.
func (c *Container) Close() error {
	var firstErr error
	for _, closer := range []func() error{
		c.Redis.Close,
		c.CoreDB.Close,
		c.MarketDB.Close,
		c.ConfigDB.Close,
	} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
