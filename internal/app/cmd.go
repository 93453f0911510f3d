package app

import (
	"errors"
	"fmt"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandIngest は引数のURLを1件取り込んで結果を標準出力に書き出すことを示す。
	CommandIngest Command = "ingest"
	// CommandMigrate は永続化先のスキーマを準備することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// Usage はコマンドの使い方。
const Usage = "usage: booruvault [serve | ingest <url> | migrate | healthcheck]"

// ErrUsage はコマンドライン引数が不正な場合のエラー。
var ErrUsage = errors.New(Usage)

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command Command
	// URL はingestコマンドの取り込み対象。
	URL string
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はserveとする。未知のサブコマンドや引数の過不足はErrUsageを返す。
func ParseCommand(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	cmd := Command(args[0])
	rest := args[1:]
	switch cmd {
	case CommandServe, CommandMigrate, CommandHealthcheck:
		if len(rest) != 0 {
			return Invocation{}, fmt.Errorf("%s は引数を取りません: %w", cmd, ErrUsage)
		}
		return Invocation{Command: cmd}, nil
	case CommandIngest:
		if len(rest) != 1 || rest[0] == "" {
			return Invocation{}, fmt.Errorf("ingest にはURLを1つ指定してください: %w", ErrUsage)
		}
		return Invocation{Command: cmd, URL: rest[0]}, nil
	default:
		return Invocation{}, fmt.Errorf("不明なコマンドです: %q: %w", args[0], ErrUsage)
	}
}
