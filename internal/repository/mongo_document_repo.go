package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/booruvault/internal/model"
)

const (
	// idField はルーティングキーを保存するMongoDBの主キー。
	idField = "_id"
	// updatedAtField はMongoDBのドキュメントに付与する更新日時のフィールド名。
	updatedAtField = "_updated_at"
	// sourceIDField はメタデータ自身の _id を退避するフィールド名。
	// 取得時に _id へ戻す。
	sourceIDField = "_source_id"
)

// MongoDocumentStore はMongoDBを使用したDocumentStore。
// ルーティングキーを _id として保存するため、1キー1ドキュメントがMongoDB側で保証される。
type MongoDocumentStore struct {
	db  *mongo.Database
	now func() time.Time
}

// NewMongoDocumentStore はMongoDocumentStoreを生成する。
func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{db: db, now: time.Now}
}

// Collection は指定名のコレクションを返す。
func (s *MongoDocumentStore) Collection(name string) Collection {
	return &mongoCollection{store: s, name: name}
}

// Ping はMongoDBへの疎通を確認する。
func (s *MongoDocumentStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

type mongoCollection struct {
	store *MongoDocumentStore
	name  string
}

// Upsert はReplaceOne(upsert)でドキュメントを丸ごと置き換える。
func (c *mongoCollection) Upsert(ctx context.Context, key string, doc *model.Metadata) error {
	if err := validateKey(c.name, key); err != nil {
		return err
	}

	_, err := c.store.db.Collection(c.name).ReplaceOne(ctx,
		bson.D{{Key: idField, Value: key}},
		replacementDocument(key, doc, c.store.now().UTC()),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ドキュメントの保存に失敗しました: %w", err)
	}
	return nil
}

// FindByKey はキーのレコードを取得する。見つからない場合はnilを返す。
func (c *mongoCollection) FindByKey(ctx context.Context, key string) (*model.Record, error) {
	var raw bson.D
	err := c.store.db.Collection(c.name).FindOne(ctx, bson.D{{Key: idField, Value: key}}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗しました: %w", err)
	}

	record := &model.Record{Collection: c.name, Key: key}
	body := make(bson.D, 0, len(raw))
	for _, e := range raw {
		switch e.Key {
		case idField:
			continue
		case sourceIDField:
			e.Key = idField
		case updatedAtField:
			if dt, ok := e.Value.(primitive.DateTime); ok {
				record.UpdatedAt = dt.Time().UTC()
			}
			continue
		}
		body = append(body, e)
	}
	record.Document = FromBSON(body)
	return record, nil
}

// replacementDocument はルーティングキーを _id とした保存用ドキュメントを組み立てる。
// メタデータ自身が _id を持つ場合は主キーと重複しないよう sourceIDField に退避する。
func replacementDocument(key string, doc *model.Metadata, updatedAt time.Time) bson.D {
	body := ToBSON(doc)
	out := make(bson.D, 0, len(body)+2)
	out = append(out, bson.E{Key: idField, Value: key})
	for _, e := range body {
		if e.Key == idField {
			e.Key = sourceIDField
		}
		out = append(out, e)
	}
	return append(out, bson.E{Key: updatedAtField, Value: updatedAt})
}

// ToBSON はMetadataをキー順を保ったbson.Dに変換する。
// 数値は整数として表現できればint64、それ以外はfloat64として保存する。
func ToBSON(m *model.Metadata) bson.D {
	out := make(bson.D, 0, m.Len())
	for _, key := range m.Keys() {
		v, _ := m.Get(key)
		out = append(out, bson.E{Key: key, Value: valueToBSON(v)})
	}
	return out
}

func valueToBSON(v model.Value) any {
	switch v.Kind() {
	case model.KindBool:
		b, _ := v.AsBool()
		return b
	case model.KindNumber:
		if i, ok := v.AsInt(); ok {
			return i
		}
		if f, ok := v.AsFloat(); ok {
			return f
		}
		n, _ := v.AsNumber()
		return n.String()
	case model.KindString:
		s, _ := v.AsString()
		return s
	case model.KindArray:
		items, _ := v.AsArray()
		arr := make(bson.A, len(items))
		for i, item := range items {
			arr[i] = valueToBSON(item)
		}
		return arr
	case model.KindObject:
		obj, _ := v.AsObject()
		return ToBSON(obj)
	default:
		return nil
	}
}

// FromBSON はbson.DをMetadataに変換する。
func FromBSON(d bson.D) *model.Metadata {
	m := model.NewMetadata()
	for _, e := range d {
		m.Set(e.Key, valueFromBSON(e.Value))
	}
	return m
}

func valueFromBSON(v any) model.Value {
	switch t := v.(type) {
	case nil:
		return model.NullValue()
	case bool:
		return model.BoolValue(t)
	case int32:
		return model.IntValue(int64(t))
	case int64:
		return model.IntValue(t)
	case float64:
		return model.FloatValue(t)
	case string:
		return model.StringValue(t)
	case bson.D:
		return model.ObjectValue(FromBSON(t))
	case bson.A:
		items := make([]model.Value, len(t))
		for i, item := range t {
			items[i] = valueFromBSON(item)
		}
		return model.ArrayValue(items...)
	case primitive.DateTime:
		return model.StringValue(t.Time().UTC().Format(time.RFC3339Nano))
	case primitive.Decimal128:
		return model.StringValue(t.String())
	default:
		return model.StringValue(fmt.Sprint(t))
	}
}
