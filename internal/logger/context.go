package logger

import (
	"context"
	"log/slog"
	"sync"
)

type attrsKey struct{}

// RequestAttrs はリクエスト処理中に下位レイヤーが追加したログ属性を保持する。
// アクセスログのミドルウェアがリクエストごとに生成し、応答後にまとめて出力する。
type RequestAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// WithRequestAttrs は空のRequestAttrsを持つコンテキストを返す。
func WithRequestAttrs(ctx context.Context) (context.Context, *RequestAttrs) {
	ra := &RequestAttrs{}
	return context.WithValue(ctx, attrsKey{}, ra), ra
}

// AddAttrs はコンテキストのRequestAttrsに属性を追加する。
// RequestAttrsが無いコンテキストでは何もしない。
func AddAttrs(ctx context.Context, attrs ...slog.Attr) {
	ra, ok := ctx.Value(attrsKey{}).(*RequestAttrs)
	if !ok {
		return
	}
	ra.mu.Lock()
	defer ra.mu.Unlock()
	ra.attrs = append(ra.attrs, attrs...)
}

// Attrs は追加された属性のコピーを追加順で返す。
func (ra *RequestAttrs) Attrs() []slog.Attr {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	out := make([]slog.Attr, len(ra.attrs))
	copy(out, ra.attrs)
	return out
}
