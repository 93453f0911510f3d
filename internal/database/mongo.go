package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo はMongoDBに接続し、疎通確認済みのデータベースを返す。
func ConnectMongo(ctx context.Context, uri, dbname string, timeout time.Duration) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	cli, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("MongoDBへの接続に失敗しました: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDBの疎通確認に失敗しました: %w", err)
	}
	return cli.Database(dbname), nil
}

// EnsureMongoIndexes はコレクションに collected_at のインデックスを作成する。
// _id がルーティングキーのため一意性はMongoDB側で保証される。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database, collections ...string) error {
	for _, name := range collections {
		_, err := db.Collection(name).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "collected_at", Value: -1}}},
		})
		if err != nil {
			return fmt.Errorf("コレクション %s のインデックス作成に失敗しました: %w", name, err)
		}
	}
	return nil
}
