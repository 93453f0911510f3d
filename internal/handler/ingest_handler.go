package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/booruvault/internal/ingest"
	"github.com/hitoshi/booruvault/internal/logger"
	"github.com/hitoshi/booruvault/internal/middleware"
	"github.com/hitoshi/booruvault/internal/model"
)

// maxRequestBodySize は取り込みリクエストボディの上限。
const maxRequestBodySize = 64 << 10

// IngestHandler は取り込みのHTTPハンドラー。
type IngestHandler struct {
	ingester ingest.Ingester
	logger   *slog.Logger
}

// NewIngestHandler はIngestHandlerを生成する。
func NewIngestHandler(ingester ingest.Ingester, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		ingester: ingester,
		logger:   logger,
	}
}

// ingestRequest は取り込みリクエストのボディ。
type ingestRequest struct {
	URL string `json:"url"`
}

// Ingest はURLの投稿を取り込み、正規化済みのIllustを返す。
// POST /api/ingest
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteBadRequest(w, "リクエストボディが大きすぎます。")
			return
		}
		middleware.WriteBadRequest(w, "リクエストボディのJSONが不正です。")
		return
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		middleware.WriteBadRequest(w, "url は必須です。")
		return
	}

	logger.AddAttrs(r.Context(), slog.String("url", url))
	illust, err := h.ingester.Ingest(r.Context(), url)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			// クライアントが切断したため応答は届かない
			h.logger.Info("取り込みリクエストが中断されました", slog.String("url", url))
			return
		}
		if apiErr, ok := model.AsAPIError(err); ok {
			logger.AddAttrs(r.Context(), slog.String("error_code", apiErr.Code))
		}
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(illust); err != nil {
		h.logger.Error("レスポンスのエンコードに失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}
