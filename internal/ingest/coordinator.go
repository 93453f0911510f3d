// Package ingest はURLから投稿を取り込み、メタデータを保存するコーディネーターを提供する。
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/booruvault/internal/logger"
	"github.com/hitoshi/booruvault/internal/metrics"
	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/repository"
	"github.com/hitoshi/booruvault/internal/site"
)

// Ingester はURLを取り込むサービスのインターフェース。
// HTTPハンドラーとCLIから利用する。
//
// PERSISTENCE_FAILURE の場合は取得・正規化済みのIllustもあわせて返す。
// 呼び出し元はIllust.Metadataを使って保存のみを再試行できる。
// それ以外のエラーではIllustはnil。
type Ingester interface {
	Ingest(ctx context.Context, rawURL string) (*model.Illust, error)
}

// Coordinator はルーティング、取得、保存の順に1件の取り込みを実行する。
// 自身は状態を持たず、並行呼び出しはストアのキー単位の上書きで解決される。
type Coordinator struct {
	router  *site.Router
	store   repository.DocumentStore
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
func NewCoordinator(
	router *site.Router,
	store repository.DocumentStore,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Coordinator {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Coordinator{
		router:  router,
		store:   store,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// Ingest はURLに一致するアダプタで投稿を取得し、collected_atを付けたメタデータを
// アダプタ名のコレクションにルーティングキーで保存してからIllustを返す。
// 取得の再試行は行わない。失敗時は何も書き込まない。
// 保存に失敗した場合は正規化済みのIllustとPERSISTENCE_FAILUREを返す。
func (c *Coordinator) Ingest(ctx context.Context, rawURL string) (*model.Illust, error) {
	match, ok := c.router.Match(rawURL)
	if !ok {
		c.metrics.RecordIngest("", model.ErrCodeRoutingFailure)
		c.logger.Info("対応していないURLです", slog.String("url", rawURL))
		return nil, model.NewRoutingFailureError(rawURL)
	}

	siteName := match.Adapter.Name()
	key := match.RoutingKey()
	logger.AddAttrs(ctx, slog.String("site", siteName), slog.String("key", key))

	start := time.Now()
	illust, err := match.Adapter.Fetch(ctx, match.Params)
	c.metrics.RecordFetchLatency(siteName, time.Since(start))
	if err != nil {
		c.recordFailure(siteName, key, err)
		return nil, err
	}

	doc := illust.Metadata.Clone()
	doc.Set(model.CollectedAtKey, model.CollectedAtValue(c.now()))

	// 呼び出し元が中断した場合は書き込まない
	if err := ctx.Err(); err != nil {
		c.logger.Info("取り込みが中断されました",
			slog.String("site", siteName),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := c.store.Collection(siteName).Upsert(ctx, key, doc); err != nil {
		apiErr := model.NewPersistenceFailureError(err)
		c.recordFailure(siteName, key, apiErr)
		return illust, apiErr
	}
	c.metrics.RecordDocumentUpserted(siteName)
	c.metrics.RecordIngest(siteName, metrics.ResultOK)

	c.logger.Info("投稿を取り込みました",
		slog.String("site", siteName),
		slog.String("key", key),
		slog.Int("images", len(illust.Images)),
		slog.Int("files", len(illust.Files)),
	)
	return illust, nil
}

func (c *Coordinator) recordFailure(siteName, key string, err error) {
	code := "UNKNOWN"
	if apiErr, ok := model.AsAPIError(err); ok {
		code = apiErr.Code
	}
	c.metrics.RecordIngest(siteName, code)

	attrs := []any{
		slog.String("site", siteName),
		slog.String("key", key),
		slog.String("code", code),
		slog.String("error", err.Error()),
	}
	switch code {
	case model.ErrCodeNormalizationFailure:
		// プロバイダーのスキーマ変更の兆候
		c.logger.Warn("投稿の正規化に失敗しました", attrs...)
	case model.ErrCodePostNotFound, model.ErrCodeRestrictedContent:
		c.logger.Info("投稿を取得できませんでした", attrs...)
	default:
		c.logger.Error("取り込みに失敗しました", attrs...)
	}
}

// compile-time interface check
var _ Ingester = (*Coordinator)(nil)
