package misskey

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
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

const sampleNote = `{
	"id": "9abcdefghi",
	"createdAt": "2024-05-06T07:08:09.000Z",
	"userId": "8xyz",
	"user": {"id": "8xyz", "username": "alice", "name": "アリス"},
	"text": "新しい絵です",
	"uri": null,
	"files": [
		{
			"name": "drawing.png", "type": "image/png", "md5": "0",
			"url": "https://media.misskey.io/files/drawing.png",
			"thumbnailUrl": "https://media.misskey.io/thumbnails/drawing.webp",
			"size": 123456,
			"properties": {"width": 1000, "height": 1500}
		},
		{
			"name": "anim.gif", "type": "image/gif", "md5": "1",
			"url": "https://media.misskey.io/files/anim.gif",
			"thumbnailUrl": null,
			"size": 2048,
			"properties": {"width": 100, "height": 100}
		},
		{
			"name": "clip.webm", "type": "video/webm", "md5": "2",
			"url": "https://media.misskey.io/files/clip.webm",
			"thumbnailUrl": null,
			"size": 4096,
			"properties": {}
		}
	]
}`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	a, err := NewAdapter(
		provider.NewRequester(server.Client(), logger, provider.Config{}),
		NewParser(site.Template{}),
		[]string{"misskey.io", "misskey.design"},
		security.NewSSRFGuard(),
		logger,
	)
	if err != nil {
		t.Fatalf("NewAdapter がエラーを返した: %v", err)
	}
	a.apiBase = func(string) string { return server.URL }
	return a
}

func TestAdapter_Fetch(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notes/show" {
			t.Errorf("リクエスト = %s %s, want POST /api/notes/show", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if req["noteId"] != "9abcdefghi" {
			t.Errorf("noteId = %q", req["noteId"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleNote))
	})

	illust, err := a.Fetch(context.Background(), site.Params{"host": "misskey.io", "note_id": "9abcdefghi"})
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	if len(illust.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(illust.Images))
	}
	img := illust.Images[0]
	if img.Filename != "9abcdefghi_drawing.png" {
		t.Errorf("Filename = %q", img.Filename)
	}
	if img.Destination != "Misskey/alice" {
		t.Errorf("Destination = %q", img.Destination)
	}
	if img.URL != "https://media.misskey.io/thumbnails/drawing.webp" || img.OriginalURL != "https://media.misskey.io/files/drawing.png" {
		t.Errorf("URL = %q, OriginalURL = %q", img.URL, img.OriginalURL)
	}
	if img.SizeBytes != 123456 || img.Width != 1000 || img.Height != 1500 {
		t.Errorf("寸法 = %d/%d/%d", img.SizeBytes, img.Width, img.Height)
	}

	// GIF と動画は変換せずファイルとして扱う
	if len(illust.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(illust.Files))
	}
	if illust.Files[0].Filename != "9abcdefghi_anim.gif" || illust.Files[1].URL != "https://media.misskey.io/files/clip.webm" {
		t.Errorf("Files = %+v", illust.Files)
	}

	if got := illust.Caption.String(model.CaptionURL); got != "https://misskey.io/notes/9abcdefghi" {
		t.Errorf("url = %q", got)
	}
	if _, ok := illust.Caption.Get(model.CaptionOriginalURL); ok {
		t.Error("uri が null の場合は original_url を含めない")
	}
	if got := illust.Caption.String(model.CaptionAuthor); got != "alice #アリス" {
		t.Errorf("author = %q", got)
	}
	if got := illust.Caption.String(model.CaptionText); got != "新しい絵です" {
		t.Errorf("text = %q", got)
	}
}

func TestAdapter_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "400 NO_SUCH_NOTE",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"message":"No such note.","code":"NO_SUCH_NOTE","id":"24fcbfc6"}}`))
			},
		},
		{
			name:    "404",
			handler: func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, tt.handler)
			_, err := a.Fetch(context.Background(), site.Params{"host": "misskey.io", "note_id": "missing"})
			if !model.HasCode(err, model.ErrCodePostNotFound) {
				t.Errorf("POST_NOT_FOUND を返すべき: %v", err)
			}
		})
	}
}

func TestAdapter_OtherBadRequestIsProviderUnavailable(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"INVALID_PARAM"}}`))
	})

	_, err := a.Fetch(context.Background(), site.Params{"host": "misskey.io", "note_id": "x"})
	if !model.HasCode(err, model.ErrCodeProviderUnavailable) {
		t.Errorf("PROVIDER_UNAVAILABLE を返すべき: %v", err)
	}
}

func TestNewAdapter_RejectsUnsafeInstance(t *testing.T) {
	_, err := NewAdapter(nil, NewParser(site.Template{}), []string{"misskey.io", "192.168.0.10"}, security.NewSSRFGuard(), nil)
	if err == nil {
		t.Error("プライベートIPのインスタンスは拒否すべき")
	}
}

func TestRegister_MatchesConfiguredInstancesOnly(t *testing.T) {
	a, err := NewAdapter(nil, NewParser(site.Template{}), []string{"Misskey.io", "misskey.design"}, security.NewSSRFGuard(), nil)
	if err != nil {
		t.Fatalf("NewAdapter がエラーを返した: %v", err)
	}
	r := site.NewRouter()
	Register(r, a)

	m, ok := r.Match("https://misskey.design/notes/9q1w2e3r4t")
	if !ok {
		t.Fatal("設定済みインスタンスのノートURLに一致すべき")
	}
	if got := m.RoutingKey(); got != "misskey.design_9q1w2e3r4t" {
		t.Errorf("RoutingKey = %q", got)
	}

	for _, url := range []string{
		"https://notmisskey.io/notes/abc",
		"https://misskey.example/notes/abc",
		"https://misskeyXio/notes/abc",
	} {
		if _, ok := r.Match(url); ok {
			t.Errorf("Match(%q) は一致してはならない", url)
		}
	}
}
