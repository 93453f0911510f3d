// Package app はコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/booruvault/internal/config"
	"github.com/hitoshi/booruvault/internal/database"
	"github.com/hitoshi/booruvault/internal/handler"
	"github.com/hitoshi/booruvault/internal/ingest"
	"github.com/hitoshi/booruvault/internal/logger"
	"github.com/hitoshi/booruvault/internal/metrics"
	"github.com/hitoshi/booruvault/internal/middleware"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数とサイト設定ファイルを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ingestコマンドは結果のJSONのみをstdoutに書き、ログはstderrに出力する。
func Run(stdout, stderr io.Writer, args []string) error {
	inv, err := ParseCommand(args)
	if err != nil {
		return err
	}
	cmd := inv.Command

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	logWriter := stdout
	if cmd == CommandIngest {
		logWriter = stderr
	}
	cfg, err := Init(logWriter)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandIngest:
		return runIngest(cfg, inv.URL, stdout)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 永続化先を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 永続化先
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. サイトアダプタと取り込みコーディネーター
	router, err := newSiteRouter(cfg, slog.Default())
	if err != nil {
		return err
	}
	coordinator := ingest.NewCoordinator(router, store, collector, slog.Default())

	// 4. HTTPルーター
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitIngest), slog.Default())
	defer rateLimiter.Stop()

	httpHandler := handler.NewRouter(&handler.RouterDeps{
		Ingester:      coordinator,
		HealthChecker: store,
		RateLimiter:   rateLimiter,
		Gatherer:      reg,
		Logger:        slog.Default(),
	})

	// 5. HTTPサーバーの起動
	// Kemonoは投稿とユーザーページの2回取得するため、書き込みタイムアウトに余裕を持たせる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.FetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Int("site_routes", router.Len()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runIngest はURLを1件取り込み、IllustをJSONとしてoutに書き出す。
func runIngest(cfg *config.Config, rawURL string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, err := newSiteRouter(cfg, slog.Default())
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	coordinator := ingest.NewCoordinator(router, store, metrics.NopCollector{}, slog.Default())
	illust, err := coordinator.Ingest(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(illust)
}

// runMigrate は永続化先のスキーマを準備する。
// PostgreSQLは未適用のマイグレーションを順番に適用し、MongoDBはインデックスを作成する。
func runMigrate(cfg *config.Config) error {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		// 接続時にインデックスを作成する
		_, closeStore, err := openStore(context.Background(), cfg)
		if err != nil {
			return err
		}
		closeStore()
		slog.Info("mongodb indexes are up to date")
		return nil

	case config.StoreDriverMemory:
		slog.Info("in-memory store has no schema to migrate")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	healthURL := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
