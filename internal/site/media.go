package site

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Extension はURLまたはパスのファイル拡張子（ドット付き）を返す。
// クエリ文字列とフラグメントは無視する。
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return path.Ext(p)
}

// IsImage は拡張子から推定したMIMEタイプが画像かどうかを判定する。
func IsImage(rawURL string) bool {
	ext := strings.ToLower(Extension(rawURL))
	if ext == "" {
		return false
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "image/")
}
