// Package repository は取り込んだメタデータの永続化インターフェースと実装を定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/booruvault/internal/model"
)

// ErrInvalidKey はコレクション名またはキーが空の場合のエラー。
var ErrInvalidKey = errors.New("コレクション名とキーは空にできません")

// DocumentStore はコレクション単位でドキュメントを保持する永続化先。
type DocumentStore interface {
	// Collection は指定名のコレクションを返す。存在しない場合は初回書き込み時に作成される。
	Collection(name string) Collection

	// Ping は永続化先への疎通を確認する。
	Ping(ctx context.Context) error
}

// Collection はキーとドキュメントの対応を保持する。
type Collection interface {
	// Upsert はキーにドキュメントを保存する。既存のドキュメントはマージせず丸ごと置き換える。
	// 1件の書き込みはアトミックに行われ、途中状態は残らない。
	Upsert(ctx context.Context, key string, doc *model.Metadata) error

	// FindByKey はキーのレコードを取得する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.Record, error)
}

func validateKey(collection, key string) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}
	return nil
}
