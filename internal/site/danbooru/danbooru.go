// Package danbooru はDanbooru系サイト（danbooru / safebooru）のアダプタを提供する。
package danbooru

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/provider"
	"github.com/hitoshi/booruvault/internal/site"
)

const (
	// Name はアダプタ名（コレクション名）。
	Name = "danbooru"
	// defaultSite はURLからサイト名が得られない場合（CDN URL）に使用するサイト。
	defaultSite = "danbooru"
)

// URLパターン
const (
	// https://danbooru.donmai.us/posts/123456
	// https://safebooru.donmai.us/post/show/123456
	PostPattern = `(?P<site>danbooru|safebooru)\.donmai\.us/(?:posts|post/show)/(?P<post_id>\d+)`
	// https://cdn.donmai.us/original/ab/cd/abcdef0123456789abcdef0123456789.jpg
	// https://cdn.donmai.us/sample/ab/cd/sample-abcdef0123456789abcdef0123456789.jpg
	CDNPattern = `cdn\.donmai\.us/.+?/(?:sample-)?(?P<md5>[0-9a-f]{32})\.\w+`
)

// ErrInvalidIdentity は投稿IDとMD5のどちらか一方のみが指定されていない場合のエラー。
var ErrInvalidIdentity = errors.New("投稿IDとMD5のどちらか一方のみを指定してください")

// Identity は投稿の識別子。PostIDとMD5のどちらか一方のみを指定する。
type Identity struct {
	PostID int64
	MD5    string
}

func (id Identity) validate() error {
	if (id.PostID > 0) == (id.MD5 != "") {
		return ErrInvalidIdentity
	}
	return nil
}

func (id Identity) String() string {
	if id.PostID > 0 {
		return strconv.FormatInt(id.PostID, 10)
	}
	return "md5:" + id.MD5
}

// Adapter はDanbooru系サイトのsite.Adapter実装。
type Adapter struct {
	requester *provider.Requester
	logger    *slog.Logger
	baseURL   string // テスト用にAPIのベースURLを差し替え可能
}

// NewAdapter はAdapterの新しいインスタンスを生成する。
func NewAdapter(requester *provider.Requester, logger *slog.Logger) *Adapter {
	return &Adapter{
		requester: requester,
		logger:    logger,
	}
}

// Register はDanbooruのURLパターンをルーターに登録する。
func Register(r *site.Router, a *Adapter) {
	r.MustRegister(PostPattern, a)
	r.MustRegister(CDNPattern, a)
}

// Name はアダプタ名を返す。
func (a *Adapter) Name() string { return Name }

// KeySegments は [サイト名, 投稿ID または MD5] を返す。
func (a *Adapter) KeySegments(params site.Params) []string {
	if id := params["post_id"]; id != "" {
		return []string{siteFromParams(params), id}
	}
	return []string{siteFromParams(params), params["md5"]}
}

// Fetch はルーティングパラメータから投稿を取得する。
// 0やint64を超える投稿IDは存在し得ないため、問い合わせずにPOST_NOT_FOUNDを返す。
func (a *Adapter) Fetch(ctx context.Context, params site.Params) (*model.Illust, error) {
	siteName := siteFromParams(params)
	var identity Identity
	if raw := params["post_id"]; raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			notFound := model.NewPostNotFoundError(siteName, raw)
			notFound.Err = err
			return nil, notFound
		}
		identity.PostID = id
	}
	identity.MD5 = params["md5"]
	return a.View(ctx, siteName, identity)
}

// View は投稿を取得して正規化済みのIllustを返す。
func (a *Adapter) View(ctx context.Context, siteName string, identity Identity) (*model.Illust, error) {
	post, err := a.GetPost(ctx, siteName, identity)
	if err != nil {
		return nil, err
	}
	return ParsePost(siteName, post)
}

// GetPost は投稿を取得する。
// 投稿が存在しない場合はPOST_NOT_FOUND、file_urlを含まない投稿（上位アカウント限定）は
// 出典URL付きのRESTRICTED_CONTENTを返す。
func (a *Adapter) GetPost(ctx context.Context, siteName string, identity Identity) (*model.Metadata, error) {
	if err := identity.validate(); err != nil {
		return nil, err
	}

	var endpoint string
	if identity.PostID > 0 {
		endpoint = fmt.Sprintf("%s/posts/%d.json", a.base(siteName), identity.PostID)
	} else {
		endpoint = fmt.Sprintf("%s/posts.json?md5=%s", a.base(siteName), url.QueryEscape(identity.MD5))
	}

	body, err := a.requester.GetJSON(ctx, endpoint)
	if err != nil {
		return nil, provider.MapError(err, siteName, identity.String())
	}

	post, err := decodePost(body)
	if err != nil {
		a.logger.Error("投稿レスポンスのパースに失敗しました",
			slog.String("site", siteName),
			slog.String("identity", identity.String()),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNormalizationFailureError(err.Error())
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(siteName, identity.String())
	}

	if post.String("file_url") == "" {
		return nil, model.NewRestrictedContentError(siteName, post.String("source"))
	}
	return post, nil
}

func (a *Adapter) base(siteName string) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	return "https://" + siteName + ".donmai.us"
}

// decodePost はレスポンスボディを投稿オブジェクトとしてデコードする。
// MD5検索は配列で返る場合があるため、空配列は未検出（nil）として扱う。
func decodePost(body []byte) (*model.Metadata, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var posts []json.RawMessage
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return nil, err
		}
		if len(posts) == 0 {
			return nil, nil
		}
		trimmed = posts[0]
	}
	return model.ParseMetadata(trimmed)
}

func siteFromParams(params site.Params) string {
	if s := params["site"]; s != "" {
		return s
	}
	return defaultSite
}

// compile-time interface check
var _ site.Adapter = (*Adapter)(nil)

// CredentialHeader はAPIキー認証用のBasic認証ヘッダーを返す。未設定の場合はnil。
func CredentialHeader(login, apiKey string) http.Header {
	if login == "" || apiKey == "" {
		return nil
	}
	token := base64.StdEncoding.EncodeToString([]byte(login + ":" + apiKey))
	return http.Header{"Authorization": []string{"Basic " + token}}
}
