// Package provider はプロバイダーAPIを呼び出す共通HTTPリクエスタを提供する。
// サイトごとのレート制限、レスポンスサイズ上限、HTTPステータスの分類を担う。
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/booruvault/internal/model"
)

// DefaultUserAgent はプロバイダーAPI呼び出し時のUser-Agent。
const DefaultUserAgent = "booruvault/1.0"

// StatusError はプロバイダーが2xx以外のステータスを返したことを表す。
// Bodyには上限サイズまでのレスポンスボディを保持する。
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s がステータス %d を返しました", e.URL, e.StatusCode)
}

// Requester はプロバイダーAPIへのHTTPリクエストを実行する。
// アダプタごとに1つ生成し、コンストラクタで注入する。
type Requester struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
	maxBodySize int64
	userAgent   string
	header      http.Header
}

// Config はRequesterの設定。
type Config struct {
	// RatePerSecond は1秒あたりの最大リクエスト数。0以下の場合は制限しない。
	RatePerSecond float64
	// MaxBodySize はレスポンスボディの最大読み取りサイズ。
	MaxBodySize int64
	// UserAgent は空の場合DefaultUserAgentを使用する。
	UserAgent string
	// Header は全リクエストに付与する追加ヘッダー（認証情報など）。
	Header http.Header
}

// NewRequester はRequesterの新しいインスタンスを生成する。
func NewRequester(httpClient *http.Client, logger *slog.Logger, cfg Config) *Requester {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 10 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Requester{
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
		maxBodySize: cfg.MaxBodySize,
		userAgent:   cfg.UserAgent,
		header:      cfg.Header,
	}
}

// Get はGETリクエストを送信し、レスポンスボディを返す。
func (r *Requester) Get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return r.do(req)
}

// GetJSON はJSONを期待するGETリクエストを送信する。
func (r *Requester) GetJSON(ctx context.Context, url string) ([]byte, error) {
	return r.Get(ctx, url, "application/json")
}

// PostJSON はpayloadをJSONとして送信するPOSTリクエストを実行する。
func (r *Requester) PostJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return r.do(req)
}

func (r *Requester) do(req *http.Request) ([]byte, error) {
	if err := r.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("レート制限の待機を中断しました: %w", err)
	}

	req.Header.Set("User-Agent", r.userAgent)
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("プロバイダーAPIの呼び出しに失敗しました",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	r.logger.Debug("プロバイダーAPIを呼び出しました",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if ClassifyHTTPStatus(resp.StatusCode) != ResultOK {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// MapError は下位レイヤーのエラーを取り込みエラー分類に変換する。
// 404/410はPOST_NOT_FOUND、それ以外の通信エラーはPROVIDER_UNAVAILABLEになる。
// 既にAPIErrorの場合はそのまま返す。
func MapError(err error, site, id string) error {
	if err == nil {
		return nil
	}
	if _, ok := model.AsAPIError(err); ok {
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch ClassifyHTTPStatus(statusErr.StatusCode) {
		case ResultNotFound:
			return NewNotFound(site, id, err)
		default:
			return model.NewProviderUnavailableError(
				fmt.Sprintf("%s がステータス %d を返しました", site, statusErr.StatusCode), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewProviderUnavailableError(fmt.Sprintf("%s の応答がタイムアウトしました", site), err)
	}
	return model.NewProviderUnavailableError(site, err)
}

// NewNotFound は原因エラーを保持したPOST_NOT_FOUNDエラーを生成する。
func NewNotFound(site, id string, cause error) error {
	apiErr := model.NewPostNotFoundError(site, id)
	apiErr.Err = cause
	return apiErr
}
