package bootstrap

import (
	"context"
	"fmt"
	"time"

	"jobtrack_server/adapter/out/llm"
	"jobtrack_server/adapter/out/messaging"
	"jobtrack_server/adapter/out/mongodb"
	"jobtrack_server/adapter/out/persistence"
	"jobtrack_server/adapter/out/provider"
	"jobtrack_server/config"
	"jobtrack_server/core/port/out"
	"jobtrack_server/core/service/account"
	"jobtrack_server/core/service/inference"
	"jobtrack_server/core/service/syncer"
	"jobtrack_server/infra/database"
	"jobtrack_server/pkg/crypto"
	"jobtrack_server/pkg/httputil"
	"jobtrack_server/pkg/logger"
	"jobtrack_server/pkg/metrics"
	"jobtrack_server/pkg/ratelimit"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const connectTimeout = 15 * time.Second

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client
	Mongo  *mongo.Client

	// Repositories
	Accounts     out.AccountRepository
	Applications out.ApplicationRepository
	Runs         out.SyncRunRepository
	States       out.StateStore
	Guard        out.SyncGuard
	Publisher    out.SyncJobPublisher

	// Providers
	OAuth    out.OAuthProvider
	OAuthErr error
	Gmail    *provider.GmailAdapter

	// Services
	Engine         *inference.Engine
	Orchestrator   *syncer.Orchestrator
	AccountService *account.Service
}

// NewDependencies connects the stores and wires the services. The returned
// cleanup closes connections in reverse order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	// Database (pgxpool)
	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	if err := database.Migrate(ctx, db); err != nil {
		return fail(fmt.Errorf("migrate: %w", err))
	}

	// Database (sqlx for account and run adapters)
	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	metrics.GlobalPoolMonitor().RegisterPgx("postgres", db)
	metrics.GlobalPoolMonitor().RegisterSQL("postgres_sqlx", sqlDB.DB)

	// Redis
	redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	// Application store
	switch cfg.StoreBackend {
	case config.StoreMongo:
		mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			return fail(err)
		}
		deps.Mongo = mongoClient
		cleanups = append(cleanups, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoClient.Disconnect(disconnectCtx)
		})

		store := mongodb.NewApplicationAdapter(mongoClient.Database(cfg.MongoDBName))
		if err := store.EnsureIndexes(ctx); err != nil {
			return fail(fmt.Errorf("mongo indexes: %w", err))
		}
		deps.Applications = store
		logger.Info("[Bootstrap] application records stored in MongoDB database %s", cfg.MongoDBName)
	default:
		deps.Applications = persistence.NewApplicationAdapter(db)
	}

	deps.Accounts = persistence.NewAccountAdapter(sqlDB)
	deps.Runs = persistence.NewSyncRunAdapter(sqlDB)
	deps.States = persistence.NewRedisOAuthStateStore(redisClient)
	deps.Guard = persistence.NewRedisSyncGuard(redisClient)
	deps.Publisher = messaging.NewRedisProducer(redisClient)

	sealer, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
	if err != nil {
		return fail(fmt.Errorf("encryptor: %w", err))
	}

	// Providers. A missing Google registration is kept and reported by the
	// operations that need it.
	googleOAuth, err := provider.NewGoogleOAuth(provider.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   httputil.GoogleClient(),
	})
	if err != nil {
		logger.WithError(err).Warn("[Bootstrap] Google OAuth disabled")
		deps.OAuthErr = err
	} else {
		deps.OAuth = googleOAuth
	}
	deps.Gmail = provider.NewGmailAdapter(ratelimit.NewSlidingWindowLimiter(redisClient, cfg.GmailRPS))

	// Inference
	var refiner out.FieldRefiner
	if r := llm.NewOpenAIRefiner(llm.RefinerConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.OpenAIModel,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: httputil.OpenAIClient(),
	}); r != nil {
		refiner = r
		logger.Info("[Bootstrap] LLM field refinement enabled (model=%s)", cfg.OpenAIModel)
	}
	deps.Engine = inference.NewEngine(refiner)

	// Services
	deps.Orchestrator = syncer.NewOrchestrator(syncer.Deps{
		Accounts:     deps.Accounts,
		Applications: deps.Applications,
		Runs:         deps.Runs,
		OAuth:        deps.OAuth,
		OAuthErr:     deps.OAuthErr,
		Mail:         deps.Gmail,
		Sealer:       sealer,
		Guard:        deps.Guard,
		Engine:       deps.Engine,
	}, cfg.SyncConfig())

	deps.AccountService = account.NewService(account.Deps{
		Accounts:     deps.Accounts,
		Applications: deps.Applications,
		Runs:         deps.Runs,
		OAuth:        deps.OAuth,
		OAuthErr:     deps.OAuthErr,
		States:       deps.States,
		Sealer:       sealer,
		Publisher:    deps.Publisher,
		Syncer:       deps.Orchestrator,
	})

	logger.Info("[Bootstrap] dependencies ready (store=%s)", cfg.StoreBackend)
	return deps, cleanup, nil
}
