package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/booruvault/internal/config"
	"github.com/hitoshi/booruvault/internal/database"
	"github.com/hitoshi/booruvault/internal/provider"
	"github.com/hitoshi/booruvault/internal/repository"
	"github.com/hitoshi/booruvault/internal/security"
	"github.com/hitoshi/booruvault/internal/site"
	"github.com/hitoshi/booruvault/internal/site/danbooru"
	"github.com/hitoshi/booruvault/internal/site/kemono"
	"github.com/hitoshi/booruvault/internal/site/misskey"
)

// siteCollections はアダプタごとの保存先コレクション名。
var siteCollections = []string{danbooru.Name, kemono.Name, misskey.Name}

// mongoConnectTimeout はMongoDBへの接続とインデックス作成のタイムアウト。
const mongoConnectTimeout = 10 * time.Second

// newSiteRouter はサイトアダプタを生成し、URLルーターに登録する。
// 登録順は danbooru → kemono → misskey で、最初に一致したものが使われる。
func newSiteRouter(cfg *config.Config, logger *slog.Logger) (*site.Router, error) {
	sites := cfg.Sites
	if sites == nil {
		sites = &config.SitesConfig{Kemono: config.KemonoConfig{CaptionMaxRunes: config.DefaultCaptionMaxRunes}}
	}

	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	requesterCfg := provider.Config{
		RatePerSecond: cfg.ProviderRatePerSec,
		MaxBodySize:   cfg.FetchMaxSize,
	}

	// Danbooru: APIキーが設定されていればBasic認証を付与する
	danbooruCfg := requesterCfg
	danbooruCfg.Header = danbooru.CredentialHeader(sites.Danbooru.Login, sites.Danbooru.APIKey)
	danbooruAdapter := danbooru.NewAdapter(
		provider.NewRequester(httpClient, logger, danbooruCfg),
		logger,
	)

	kemonoAdapter := kemono.NewAdapter(
		provider.NewRequester(httpClient, logger, requesterCfg),
		kemono.NewParser(
			site.Template{
				Filename:    sites.Kemono.Template.Filename,
				Destination: sites.Kemono.Template.Destination,
			},
			security.NewContentSanitizer(sites.Kemono.CaptionMaxRunes),
		),
		logger,
	)

	// Misskeyのインスタンスは設定ファイル由来のため、SSRF防止クライアントで接続する
	guard := security.NewSSRFGuard()
	misskeyAdapter, err := misskey.NewAdapter(
		provider.NewRequester(guard.NewSafeClient(cfg.FetchTimeout), logger, requesterCfg),
		misskey.NewParser(site.Template{
			Filename:    sites.Misskey.Template.Filename,
			Destination: sites.Misskey.Template.Destination,
		}),
		sites.Misskey.Instances,
		guard,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure misskey: %w", err)
	}

	r := site.NewRouter()
	danbooru.Register(r, danbooruAdapter)
	kemono.Register(r, kemonoAdapter)
	misskey.Register(r, misskeyAdapter)
	return r, nil
}

// openStore は設定されたドライバーの永続化先を開く。
// 返却するclose関数で接続を解放する。
func openStore(ctx context.Context, cfg *config.Config) (repository.DocumentStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
		defer cancel()

		db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, mongoConnectTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		closeFn := func() { _ = db.Client().Disconnect(context.Background()) }
		if err := database.EnsureMongoIndexes(ctx, db, siteCollections...); err != nil {
			closeFn()
			return nil, nil, err
		}
		slog.Info("mongodb connection established", slog.String("database", cfg.MongoDatabase))
		return repository.NewMongoDocumentStore(db), closeFn, nil

	case config.StoreDriverMemory:
		slog.Warn("using in-memory store; ingested documents are lost on exit")
		return repository.NewMemoryDocumentStore(), func() {}, nil

	default:
		db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return repository.NewPostgresDocumentStore(db), func() { db.Close() }, nil
	}
}
