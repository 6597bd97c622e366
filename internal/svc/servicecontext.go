package svc

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "eodprices/internal/cache"
	"eodprices/internal/config"
	pricepersist "eodprices/internal/persistence/prices"
	"eodprices/internal/pricecache"
	"eodprices/internal/queue"
	marketpkg "eodprices/pkg/market"
	"eodprices/pkg/market/session"
	_ "eodprices/pkg/market/stooq"
	_ "eodprices/pkg/market/yahoo"
)

const migrateTimeout = 30 * time.Second

// sessionOwner is implemented by providers that hold a provider session.
type sessionOwner interface {
	Session() *session.Manager
}

type ServiceContext struct {
	Config config.Config

	DBConn   sqlx.SqlConn
	Cache    gocache.Cache
	Store    pricepersist.Store
	Exporter *pricepersist.Exporter

	MarketConfig    *marketpkg.Config
	MarketProviders map[string]marketpkg.Provider
	Fetcher         *marketpkg.Fetcher
	Sessions        map[string]*session.Manager

	Queue  *queue.Queue
	Worker *queue.Worker
	Prices *pricecache.Service
}

// NewServiceContext wires storage, providers, the fetch queue and the cache
// façade. Startup problems are fatal.
func NewServiceContext(c config.Config) *ServiceContext {
	svc, err := Build(c)
	if err != nil {
		log.Fatalf("failed to build service context: %v", err)
	}
	return svc
}

// Build is NewServiceContext returning errors instead of exiting.
func Build(c config.Config) (*ServiceContext, error) {
	svc := &ServiceContext{Config: c}
	svc.Exporter = pricepersist.NewExporter(c.ExportDir())
	storeOpts := []pricepersist.Option{
		pricepersist.WithRetention(c.Prices.Retention),
		pricepersist.WithExporter(svc.Exporter),
	}

	if c.UseDatabase() {
		conn, err := openPostgres(c.Postgres)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		err = pricepersist.Migrate(ctx, conn)
		cancel()
		if err != nil {
			return nil, err
		}
		svc.DBConn = conn
		if c.Redis.Host != "" {
			svc.Cache = gocache.New(
				gocache.ClusterConf{{RedisConf: c.Redis, Weight: 100}},
				syncx.NewSingleFlight(),
				gocache.NewStat("eodprices"),
				sqlx.ErrNotFound,
			)
		}
		svc.Store = pricepersist.NewService(pricepersist.Config{
			SQLConn: conn,
			Cache:   svc.Cache,
			TTL:     cachekeys.NewTTLSet(c.TTL),
		}, storeOpts...)
	} else {
		svc.Store = pricepersist.NewMemoryStore(storeOpts...)
	}

	mkt := c.Market.Value
	if mkt == nil {
		mkt = marketpkg.DefaultConfig()
	}
	providers, err := mkt.BuildProviders()
	if err != nil {
		return nil, fmt.Errorf("build market providers: %w", err)
	}
	fetcher, err := marketpkg.BuildFetcher(providers, c.Prices.Primary, c.Prices.Fallback)
	if err != nil {
		return nil, err
	}
	svc.MarketConfig = mkt
	svc.MarketProviders = providers
	svc.Fetcher = fetcher
	svc.Sessions = make(map[string]*session.Manager)
	for name, p := range providers {
		if owner, ok := p.(sessionOwner); ok && owner.Session() != nil {
			svc.Sessions[name] = owner.Session()
		}
	}

	svc.Queue = queue.New()
	svc.Worker = queue.NewWorker(svc.Queue, fetcher, svc.Store,
		queue.WithInterval(c.Prices.WorkerInterval),
		queue.WithHistoryDays(c.Prices.HistoryDays),
	)
	svc.Prices = pricecache.NewService(svc.Store, svc.Queue,
		pricecache.WithFreshness(c.Prices.Freshness),
		pricecache.WithErrorBackoff(c.Prices.ErrorBackoff),
		pricecache.WithSeriesDays(c.Prices.Retention),
	)
	return svc, nil
}

// SessionNames returns the providers holding a session, sorted.
func (s *ServiceContext) SessionNames() []string {
	names := make([]string, 0, len(s.Sessions))
	for name := range s.Sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openPostgres(pc config.PostgresConf) (sqlx.SqlConn, error) {
	db, err := sql.Open("pgx", pc.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pc.MaxOpen > 0 {
		db.SetMaxOpenConns(pc.MaxOpen)
	}
	if pc.MaxIdle > 0 {
		db.SetMaxIdleConns(pc.MaxIdle)
	}
	return sqlx.NewSqlConnFromDB(db), nil
}
