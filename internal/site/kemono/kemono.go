// Package kemono はKemonoのアダプタを提供する。
package kemono

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/provider"
	"github.com/hitoshi/booruvault/internal/site"
)

// Name はアダプタ名（コレクション名）。
const Name = "kemono"

// PostPattern は投稿URLのパターン。
//
//	https://kemono.su/fanbox/user/12345/post/12345
//	https://kemono.party/boosty/user/abcdef/post/a1b2c3-d4e5f6-7890
//	https://kemono.su/dlsite/user/RG12345/post/RE12345
const PostPattern = `kemono\.(?:party|su)/(?P<service>\w+)/user/(?P<user_id>[\w-]+)/post/(?P<post_id>[\w-]+)`

const defaultBaseURL = "https://kemono.su"

// Adapter はKemonoのsite.Adapter実装。
type Adapter struct {
	requester *provider.Requester
	parser    *Parser
	logger    *slog.Logger
	baseURL   string
}

// NewAdapter はAdapterの新しいインスタンスを生成する。
func NewAdapter(requester *provider.Requester, parser *Parser, logger *slog.Logger) *Adapter {
	return &Adapter{
		requester: requester,
		parser:    parser,
		logger:    logger,
		baseURL:   defaultBaseURL,
	}
}

// Register はKemonoのURLパターンをルーターに登録する。
func Register(r *site.Router, a *Adapter) {
	r.MustRegister(PostPattern, a)
}

// Name はアダプタ名を返す。
func (a *Adapter) Name() string { return Name }

// KeySegments は [サービス, ユーザーID, 投稿ID] を返す。
func (a *Adapter) KeySegments(params site.Params) []string {
	return []string{params["service"], params["user_id"], params["post_id"]}
}

// Fetch は投稿と投稿者名を取得して正規化済みのIllustを返す。
func (a *Adapter) Fetch(ctx context.Context, params site.Params) (*model.Illust, error) {
	post, err := a.GetPost(ctx, params["service"], params["user_id"], params["post_id"])
	if err != nil {
		return nil, err
	}
	return a.parser.Parse(post)
}

// GetPost は投稿を取得し、投稿者名を "username" として付与して返す。
// 空のレスポンスはPOST_NOT_FOUNDとして扱う。
func (a *Adapter) GetPost(ctx context.Context, service, userID, postID string) (*model.Metadata, error) {
	id := service + "/" + userID + "/" + postID
	endpoint := a.baseURL + "/api/v1/" + service + "/user/" + userID + "/post/" + postID

	body, err := a.requester.GetJSON(ctx, endpoint)
	if err != nil {
		return nil, provider.MapError(err, Name, id)
	}

	post, err := decodePost(body)
	if err != nil {
		a.logger.Error("投稿レスポンスのパースに失敗しました",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNormalizationFailureError(err.Error())
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(Name, id)
	}

	post.Set("username", model.StringValue(a.GetUsername(ctx, service, userID)))
	return post, nil
}

// GetUsername は投稿者ページの <meta name="artist_name"> から投稿者名を取得する。
// 取得できない場合は空文字列を返す（投稿の取り込みは継続する）。
func (a *Adapter) GetUsername(ctx context.Context, service, userID string) string {
	pageURL := a.baseURL + "/" + service + "/user/" + userID
	body, err := a.requester.Get(ctx, pageURL, "text/html")
	if err != nil {
		a.logger.Warn("投稿者ページの取得に失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("投稿者ページのパースに失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	content, _ := doc.Find(`meta[name="artist_name"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

// decodePost はレスポンスボディを投稿としてデコードする。
// {"post": {...}} 形式のレスポンスは内側の投稿を取り出す。空の場合はnilを返す。
func decodePost(body []byte) (*model.Metadata, error) {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0,
		bytes.Equal(trimmed, []byte("null")),
		bytes.Equal(trimmed, []byte("{}")):
		return nil, nil
	case trimmed[0] == '[':
		var posts []json.RawMessage
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return nil, err
		}
		if len(posts) == 0 {
			return nil, nil
		}
		trimmed = posts[0]
	}

	post, err := model.ParseMetadata(trimmed)
	if err != nil {
		return nil, err
	}
	if inner := post.Object("post"); inner != nil {
		post = inner
	}
	if post.Len() == 0 {
		return nil, nil
	}
	return post, nil
}

// compile-time interface check
var _ site.Adapter = (*Adapter)(nil)
