package kemono

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/security"
	"github.com/hitoshi/booruvault/internal/site"
)

// 配信URL。パスはAPIの file.path / attachments[].path（"/ab/cd/hash.ext"）。
const (
	dataURL      = "https://kemono.su/data"
	thumbnailURL = "https://img.kemono.su/thumbnail/data"
)

// 既定のファイル名・保存先テンプレート
const (
	DefaultFilename    = "{pretty_name}"
	DefaultDestination = "Kemono/{service}/{username} ({user})/{title} ({id})"
)

// timeLayouts はAPIの日時の書式。タイムゾーンが無い場合はUTCとして扱う。
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Parser は投稿のメタデータからIllustを構築する。ネットワークにはアクセスしない。
type Parser struct {
	Template  site.Template
	Sanitizer *security.ContentSanitizer
}

// NewParser はテンプレートの空欄を既定値で補ったParserを生成する。
func NewParser(tmpl site.Template, sanitizer *security.ContentSanitizer) *Parser {
	if tmpl.Filename == "" {
		tmpl.Filename = DefaultFilename
	}
	if tmpl.Destination == "" {
		tmpl.Destination = DefaultDestination
	}
	return &Parser{Template: tmpl, Sanitizer: sanitizer}
}

// Parse は投稿を画像とファイルに分類し、キャプションを付けたIllustを返す。
// file と attachments を順に処理し、画像には出現順に "{n} - {name}" の名前を付ける。
// DLsiteのHTML添付は除外する。
func (p *Parser) Parse(post *model.Metadata) (*model.Illust, error) {
	for _, key := range []string{"id", "user", "service"} {
		if post.String(key) == "" {
			return nil, model.NewNormalizationFailureError(key + " がありません")
		}
	}

	var entries []*model.Metadata
	if file := post.Object("file"); file != nil && file.String("path") != "" {
		entries = append(entries, file)
	}
	for _, v := range post.Array("attachments") {
		attachment, ok := v.AsObject()
		if !ok {
			return nil, model.NewNormalizationFailureError("attachments の要素がオブジェクトではありません")
		}
		entries = append(entries, attachment)
	}
	if len(entries) == 0 {
		return nil, model.NewNormalizationFailureError("投稿にファイルがありません")
	}

	vars, err := p.baseVars(post)
	if err != nil {
		return nil, err
	}

	illust := &model.Illust{
		Images:   []model.Image{},
		Files:    []model.File{},
		Metadata: post,
	}
	imageIndex := 0
	for _, entry := range entries {
		filePath := entry.String("path")
		if filePath == "" {
			return nil, model.NewNormalizationFailureError("ファイルのパスがありません")
		}
		name := entry.String("name")
		if name == "" {
			name = path.Base(filePath)
		}

		if !site.IsImage(filePath) {
			if post.String("service") == "dlsite" && strings.HasSuffix(filePath, ".html") {
				continue
			}
			destination, filename := p.storageDest(vars, name, filePath)
			illust.Files = append(illust.Files, model.File{
				Filename:    filename,
				URL:         dataURL + filePath,
				Destination: destination,
			})
			continue
		}

		destination, filename := p.storageDest(vars, strconv.Itoa(imageIndex)+" - "+name, filePath)
		illust.Images = append(illust.Images, model.Image{
			Filename:    filename,
			URL:         thumbnailURL + filePath,
			OriginalURL: dataURL + filePath,
			Destination: destination,
		})
		imageIndex++
	}
	if len(illust.Images) == 0 && len(illust.Files) == 0 {
		return nil, model.NewNormalizationFailureError("保存対象のファイルがありません")
	}

	illust.Caption = p.caption(post)
	return illust, nil
}

// PostURL は投稿ページのURLを返す。
func PostURL(service, user, id string) string {
	return "https://kemono.su/" + service + "/user/" + user + "/post/" + id
}

func (p *Parser) caption(post *model.Metadata) *model.Caption {
	c := model.NewCaption().
		Set(model.CaptionTitle, post.String("title")).
		Set(model.CaptionAuthor, "#"+post.String("username")).
		Set(model.CaptionURL, PostURL(post.String("service"), post.String("user"), post.String("id")))
	if p.Sanitizer != nil {
		if content := p.Sanitizer.PlainText(post.String("content")); content != "" {
			c.Set(model.CaptionContent, content)
		}
	}
	return c
}

// baseVars は投稿全体で共通のテンプレート変数を組み立てる。
func (p *Parser) baseVars(post *model.Metadata) (site.Vars, error) {
	vars := site.Vars{}
	for _, key := range post.Keys() {
		v, _ := post.Get(key)
		switch v.Kind() {
		case model.KindString, model.KindNumber, model.KindBool:
			vars[key] = site.SafeName(v.Scalar())
		}
	}

	added, err := parseTime(post.String("added"))
	if err != nil {
		return nil, model.NewNormalizationFailureError("added の解析に失敗しました: " + err.Error())
	}
	edited := added
	if raw := post.String("edited"); raw != "" {
		if edited, err = parseTime(raw); err != nil {
			return nil, model.NewNormalizationFailureError("edited の解析に失敗しました: " + err.Error())
		}
	}
	published, err := parseTime(post.String("published"))
	if err != nil {
		return nil, model.NewNormalizationFailureError("published の解析に失敗しました: " + err.Error())
	}
	vars.SetTime("added", added)
	vars.SetTime("edited", edited)
	vars.SetTime("published", published)
	return vars, nil
}

// storageDest はファイルごとの保存先とファイル名を返す。
// {filename} はKemonoが付けたハッシュ名、{pretty_name} は投稿者が付けた名前（いずれも拡張子なし）。
func (p *Parser) storageDest(base site.Vars, prettyName, filePath string) (destination, filename string) {
	extension := path.Ext(filePath)
	vars := make(site.Vars, len(base)+3)
	for k, v := range base {
		vars[k] = v
	}
	vars["filename"] = strings.TrimSuffix(path.Base(filePath), extension)
	vars["pretty_name"] = site.SafeName(strings.TrimSuffix(prettyName, path.Ext(prettyName)))
	vars["extension"] = extension

	return site.Render(p.Template.Destination, vars), site.Render(p.Template.Filename, vars) + extension
}

// parseTime はAPIの日時を解析する。空文字列はゼロ値を返す。
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
