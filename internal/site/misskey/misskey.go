// Package misskey は設定されたMisskeyインスタンスのアダプタを提供する。
package misskey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/provider"
	"github.com/hitoshi/booruvault/internal/security"
	"github.com/hitoshi/booruvault/internal/site"
)

// Name はアダプタ名（コレクション名）。
const Name = "misskey"

// DefaultInstances は設定が無い場合に対応するインスタンス。
var DefaultInstances = []string{"misskey.io"}

// errCodeNoSuchNote はノートが存在しない場合にAPIが返すエラーコード。
const errCodeNoSuchNote = "NO_SUCH_NOTE"

// Adapter はMisskeyのsite.Adapter実装。
type Adapter struct {
	requester *provider.Requester
	parser    *Parser
	instances []string
	logger    *slog.Logger
	apiBase   func(host string) string
}

// NewAdapter はAdapterの新しいインスタンスを生成する。
// インスタンスのホスト名はguardで検証し、不正なものがあればエラーを返す。
func NewAdapter(requester *provider.Requester, parser *Parser, instances []string, guard *security.SSRFGuard, logger *slog.Logger) (*Adapter, error) {
	if len(instances) == 0 {
		instances = DefaultInstances
	}
	hosts := make([]string, 0, len(instances))
	for _, host := range instances {
		host = strings.ToLower(strings.TrimSpace(host))
		if err := guard.ValidateHost(host); err != nil {
			return nil, fmt.Errorf("Misskeyインスタンス %q は使用できません: %w", host, err)
		}
		hosts = append(hosts, host)
	}
	return &Adapter{
		requester: requester,
		parser:    parser,
		instances: hosts,
		logger:    logger,
		apiBase:   func(host string) string { return "https://" + host },
	}, nil
}

// Pattern は設定されたインスタンスのノートURLに一致するパターンを返す。
//
//	https://misskey.io/notes/9abcdefghi
func (a *Adapter) Pattern() string {
	quoted := make([]string, len(a.instances))
	for i, host := range a.instances {
		quoted[i] = regexp.QuoteMeta(host)
	}
	return `(?:^|//)(?P<host>` + strings.Join(quoted, "|") + `)/notes/(?P<note_id>\w+)`
}

// Register はMisskeyのURLパターンをルーターに登録する。
func Register(r *site.Router, a *Adapter) {
	r.MustRegister(a.Pattern(), a)
}

// Name はアダプタ名を返す。
func (a *Adapter) Name() string { return Name }

// KeySegments は [ホスト, ノートID] を返す。
func (a *Adapter) KeySegments(params site.Params) []string {
	return []string{params["host"], params["note_id"]}
}

// Fetch はノートを取得して正規化済みのIllustを返す。
func (a *Adapter) Fetch(ctx context.Context, params site.Params) (*model.Illust, error) {
	host := params["host"]
	note, err := a.GetNote(ctx, host, params["note_id"])
	if err != nil {
		return nil, err
	}
	return a.parser.Parse(host, note)
}

// GetNote はノートを取得する。
// 存在しないノートはAPIが400 NO_SUCH_NOTEを返すため、404と同様にPOST_NOT_FOUNDとする。
func (a *Adapter) GetNote(ctx context.Context, host, noteID string) (*model.Metadata, error) {
	body, err := a.requester.PostJSON(ctx, a.apiBase(host)+"/api/notes/show", map[string]string{
		"noteId": noteID,
	})
	if err != nil {
		if isNoSuchNote(err) {
			return nil, provider.NewNotFound(host, noteID, err)
		}
		return nil, provider.MapError(err, host, noteID)
	}

	note, err := model.ParseMetadata(body)
	if err != nil {
		a.logger.Error("ノートレスポンスのパースに失敗しました",
			slog.String("host", host),
			slog.String("note_id", noteID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNormalizationFailureError(err.Error())
	}
	return note, nil
}

// apiErrorBody はMisskey APIのエラーレスポンス。
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func isNoSuchNote(err error) bool {
	var statusErr *provider.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		return false
	}
	var body apiErrorBody
	if json.Unmarshal(statusErr.Body, &body) != nil {
		return false
	}
	return body.Error.Code == errCodeNoSuchNote
}

// compile-time interface check
var _ site.Adapter = (*Adapter)(nil)
