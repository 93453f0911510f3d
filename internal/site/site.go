// Package site はサイト固有処理を抽象化するアダプタのインターフェースと、
// URLパターンからアダプタを選択するルーターを提供する。
// 新しいサイトへの対応はアダプタ実装とルーターへの登録の追加のみで行う。
package site

import (
	"context"
	"strings"

	"github.com/hitoshi/booruvault/internal/model"
)

// Params はURLパターンの名前付きキャプチャから抽出したルーティングパラメータ。
type Params map[string]string

// Adapter はサイト固有の取得・正規化処理を抽象化するインターフェース。
type Adapter interface {
	// Name はアダプタ名を返す。永続化先のコレクション名としても使用する。
	Name() string
	// Fetch はルーティングパラメータで識別される投稿を取得し、正規化済みのIllustを返す。
	Fetch(ctx context.Context, params Params) (*model.Illust, error)
	// KeySegments はルーティングキーを構成する投稿識別子のセグメントを返す。
	// 同一のパラメータに対しては常に同一のセグメントを返すこと。
	KeySegments(params Params) []string
}

// keySeparator はルーティングキーのセグメント区切り文字。
const keySeparator = "_"

// keyEscaper はセグメント内の区切り文字とエスケープ文字自体をパーセントエンコードする。
// 通常の識別子はそのまま連結され、区切り文字を含む識別子同士も衝突しない。
var keyEscaper = strings.NewReplacer("%", "%25", keySeparator, "%5F")

// RoutingKey はセグメントをエスケープして区切り文字で連結したルーティングキーを返す。
func RoutingKey(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = keyEscaper.Replace(s)
	}
	return strings.Join(escaped, keySeparator)
}
