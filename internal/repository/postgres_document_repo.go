package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/booruvault/internal/model"
)

// PostgresDocumentStore はPostgreSQLの documents テーブルを使用したDocumentStore。
// (collection, doc_key) の一意制約により1キー1レコードを保証する。
type PostgresDocumentStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresDocumentStore はPostgresDocumentStoreを生成する。
func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db, now: time.Now}
}

// Collection は指定名のコレクションを返す。
func (s *PostgresDocumentStore) Collection(name string) Collection {
	return &postgresCollection{store: s, name: name}
}

// Ping はデータベースへの疎通を確認する。
func (s *PostgresDocumentStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type postgresCollection struct {
	store *PostgresDocumentStore
	name  string
}

// Upsert はINSERT ON CONFLICTでドキュメントを保存する。
// 既存レコードは id と created_at を維持したまま document と updated_at を置き換える。
func (c *postgresCollection) Upsert(ctx context.Context, key string, doc *model.Metadata) error {
	if err := validateKey(c.name, key); err != nil {
		return err
	}

	body, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("ドキュメントのエンコードに失敗しました: %w", err)
	}

	now := c.store.now().UTC()
	_, err = c.store.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection, doc_key, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (collection, doc_key) DO UPDATE SET
		     document = EXCLUDED.document,
		     updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), c.name, key, string(body), now,
	)
	if err != nil {
		return fmt.Errorf("ドキュメントの保存に失敗しました: %w", err)
	}
	return nil
}

// FindByKey はキーのレコードを取得する。見つからない場合はnilを返す。
func (c *postgresCollection) FindByKey(ctx context.Context, key string) (*model.Record, error) {
	var body []byte
	record := &model.Record{Collection: c.name, Key: key}

	err := c.store.db.QueryRowContext(ctx,
		`SELECT document, updated_at FROM documents WHERE collection = $1 AND doc_key = $2`,
		c.name, key,
	).Scan(&body, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗しました: %w", err)
	}

	record.Document, err = model.ParseMetadata(body)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントのデコードに失敗しました: %w", err)
	}
	return record, nil
}
