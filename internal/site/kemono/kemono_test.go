package kemono

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/provider"
	"github.com/hitoshi/booruvault/internal/security"
	"github.com/hitoshi/booruvault/internal/site"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

const fanboxPost = `{
	"id": "67890",
	"user": "12345",
	"service": "fanbox",
	"title": "新作/イラスト",
	"content": "<p>いつもありがとうございます</p><p>差分つき</p>",
	"added": "2024-01-02T03:04:05.123456",
	"edited": null,
	"published": "2024-01-01T00:00:00",
	"file": {"name": "cover.jpg", "path": "/aa/bb/coverhash.jpg"},
	"attachments": [
		{"name": "page1.png", "path": "/cc/dd/page1hash.png"},
		{"name": "psd.zip", "path": "/ee/ff/ziphash.zip"},
		{"name": "page2.png", "path": "/11/22/page2hash.png"}
	]
}`

const creatorPage = `<!DOCTYPE html>
<html><head>
<meta name="artist_name" content=" アリス ">
<title>Kemono</title>
</head><body></body></html>`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	parser := NewParser(site.Template{}, security.NewContentSanitizer(0))
	a := NewAdapter(provider.NewRequester(server.Client(), logger, provider.Config{}), parser, logger)
	a.baseURL = server.URL
	return a
}

func TestAdapter_Fetch(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/fanbox/user/12345/post/67890":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(fanboxPost))
		case "/fanbox/user/12345":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(creatorPage))
		default:
			t.Errorf("想定外のパス: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	illust, err := a.Fetch(context.Background(), site.Params{"service": "fanbox", "user_id": "12345", "post_id": "67890"})
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	if len(illust.Images) != 3 {
		t.Fatalf("images = %d, want 3", len(illust.Images))
	}
	if len(illust.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(illust.Files))
	}

	wantNames := []string{"0 - cover.jpg", "1 - page1.png", "2 - page2.png"}
	for i, want := range wantNames {
		if illust.Images[i].Filename != want {
			t.Errorf("Images[%d].Filename = %q, want %q", i, illust.Images[i].Filename, want)
		}
	}
	if illust.Images[0].OriginalURL != "https://kemono.su/data/aa/bb/coverhash.jpg" {
		t.Errorf("OriginalURL = %q", illust.Images[0].OriginalURL)
	}
	if illust.Images[0].URL != "https://img.kemono.su/thumbnail/data/aa/bb/coverhash.jpg" {
		t.Errorf("URL = %q", illust.Images[0].URL)
	}
	if illust.Files[0].Filename != "psd.zip" {
		t.Errorf("Files[0].Filename = %q", illust.Files[0].Filename)
	}

	wantDest := "Kemono/fanbox/アリス (12345)/新作 イラスト (67890)"
	if illust.Images[0].Destination != wantDest {
		t.Errorf("Destination = %q, want %q", illust.Images[0].Destination, wantDest)
	}

	if got := illust.Metadata.String("username"); got != "アリス" {
		t.Errorf("username = %q, want アリス", got)
	}
	if got := illust.Caption.String(model.CaptionAuthor); got != "#アリス" {
		t.Errorf("author = %q", got)
	}
	if got := illust.Caption.String(model.CaptionURL); got != "https://kemono.su/fanbox/user/12345/post/67890" {
		t.Errorf("url = %q", got)
	}
	if got := illust.Caption.String(model.CaptionContent); got != "いつもありがとうございます\n差分つき" {
		t.Errorf("content = %q", got)
	}
}

func TestAdapter_FetchContinuesWithoutUsername(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Write([]byte(fanboxPost))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	illust, err := a.Fetch(context.Background(), site.Params{"service": "fanbox", "user_id": "12345", "post_id": "67890"})
	if err != nil {
		t.Fatalf("投稿者名の取得失敗は取り込みを中断してはならない: %v", err)
	}
	if got := illust.Caption.String(model.CaptionAuthor); got != "#" {
		t.Errorf("author = %q, want #", got)
	}
}

func TestAdapter_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"404", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"空オブジェクト", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) }},
		{"空配列", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) }},
		{"null", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`null`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, tt.handler)
			_, err := a.Fetch(context.Background(), site.Params{"service": "fanbox", "user_id": "1", "post_id": "2"})
			if !model.HasCode(err, model.ErrCodePostNotFound) {
				t.Errorf("POST_NOT_FOUND を返すべき: %v", err)
			}
		})
	}
}

func TestAdapter_ServerErrorIsProviderUnavailable(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := a.Fetch(context.Background(), site.Params{"service": "fanbox", "user_id": "1", "post_id": "2"})
	if !model.HasCode(err, model.ErrCodeProviderUnavailable) {
		t.Errorf("PROVIDER_UNAVAILABLE を返すべき: %v", err)
	}
}

func TestDecodePost_UnwrapsPostEnvelope(t *testing.T) {
	post, err := decodePost([]byte(`{"post": {"id": "1", "service": "patreon"}, "previews": []}`))
	if err != nil {
		t.Fatalf("decodePost がエラーを返した: %v", err)
	}
	if post.String("service") != "patreon" {
		t.Errorf("内側の投稿を返すべき: %v", post.Keys())
	}
}

func TestRegister_RoutingKey(t *testing.T) {
	a := NewAdapter(nil, nil, nil)
	r := site.NewRouter()
	Register(r, a)

	m, ok := r.Match("https://kemono.party/boosty/user/abc-def/post/a1b2c3-d4e5f6-7890")
	if !ok {
		t.Fatal("Kemono の投稿URLに一致すべき")
	}
	if got := m.RoutingKey(); got != "boosty_abc-def_a1b2c3-d4e5f6-7890" {
		t.Errorf("RoutingKey = %q", got)
	}
	if _, ok := r.Match("https://kemono.su/fanbox/user/12345"); ok {
		t.Error("投稿以外のURLに一致してはならない")
	}
}
