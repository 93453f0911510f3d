package misskey

import (
	"path"
	"strings"
	"time"

	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/site"
)

// 既定のファイル名・保存先テンプレート
const (
	DefaultFilename    = "{id}_{filename}"
	DefaultDestination = "Misskey/{username}"
)

var (
	noteRequired = []string{"id", "user", "text", "createdAt", "files"}
	userRequired = []string{"username", "name"}
	fileRequired = []string{"name", "type", "url", "thumbnailUrl", "size", "properties"}
)

// Parser はノートのメタデータからIllustを構築する。ネットワークにはアクセスしない。
type Parser struct {
	Template site.Template
}

// NewParser はテンプレートの空欄を既定値で補ったParserを生成する。
func NewParser(tmpl site.Template) *Parser {
	if tmpl.Filename == "" {
		tmpl.Filename = DefaultFilename
	}
	if tmpl.Destination == "" {
		tmpl.Destination = DefaultDestination
	}
	return &Parser{Template: tmpl}
}

// Validate はノートに必須フィールドが揃っているかを検証する。
func Validate(note *model.Metadata) error {
	for _, key := range noteRequired {
		if !note.Has(key) {
			return model.NewNormalizationFailureError("ノートに " + key + " がありません")
		}
	}
	user := note.Object("user")
	if user == nil {
		return model.NewNormalizationFailureError("user がオブジェクトではありません")
	}
	for _, key := range userRequired {
		if !user.Has(key) {
			return model.NewNormalizationFailureError("user に " + key + " がありません")
		}
	}
	for _, v := range note.Array("files") {
		file, ok := v.AsObject()
		if !ok {
			return model.NewNormalizationFailureError("files の要素がオブジェクトではありません")
		}
		for _, key := range fileRequired {
			if !file.Has(key) {
				return model.NewNormalizationFailureError("ファイルに " + key + " がありません")
			}
		}
	}
	return nil
}

// Parse はノートの添付ファイルを画像とファイルに分類し、キャプションを付けたIllustを返す。
// GIF以外の画像は画像、それ以外（GIF、動画、音声など）はファイルとして変換せずに扱う。
func (p *Parser) Parse(host string, note *model.Metadata) (*model.Illust, error) {
	if err := Validate(note); err != nil {
		return nil, err
	}
	files := note.Array("files")
	if len(files) == 0 {
		return nil, model.NewNormalizationFailureError("ノートに添付ファイルがありません")
	}

	vars, err := baseVars(note)
	if err != nil {
		return nil, err
	}

	illust := &model.Illust{
		Images:   []model.Image{},
		Files:    []model.File{},
		Metadata: note,
	}
	for _, v := range files {
		file, _ := v.AsObject()
		fileURL := file.String("url")
		if fileURL == "" {
			return nil, model.NewNormalizationFailureError("ファイルのURLがありません")
		}
		destination, filename := p.storageDest(vars, file.String("name"))
		mimeType := file.String("type")

		if strings.HasPrefix(mimeType, "image/") && !strings.HasSuffix(mimeType, "gif") {
			displayURL := file.String("thumbnailUrl")
			if displayURL == "" {
				displayURL = fileURL
			}
			size, _ := file.Int("size")
			props := file.Object("properties")
			width, _ := props.Int("width")
			height, _ := props.Int("height")
			illust.Images = append(illust.Images, model.Image{
				Filename:    filename,
				URL:         displayURL,
				OriginalURL: fileURL,
				Destination: destination,
				SizeBytes:   size,
				Width:       int(width),
				Height:      int(height),
			})
			continue
		}

		illust.Files = append(illust.Files, model.File{
			Filename:    filename,
			URL:         fileURL,
			Destination: destination,
		})
	}

	illust.Caption = caption(host, note)
	return illust, nil
}

// NoteURL はインスタンス上のノートのURLを返す。
func NoteURL(host, id string) string {
	return "https://" + host + "/notes/" + id
}

func caption(host string, note *model.Metadata) *model.Caption {
	user := note.Object("user")
	c := model.NewCaption().Set(model.CaptionURL, NoteURL(host, note.String("id")))
	// 連合先のノートは元インスタンスのURLを持つ
	if uri := note.String("uri"); uri != "" {
		c.Set(model.CaptionOriginalURL, uri)
	}
	return c.
		Set(model.CaptionAuthor, user.String("username")+" #"+user.String("name")).
		Set(model.CaptionText, note.String("text"))
}

func baseVars(note *model.Metadata) (site.Vars, error) {
	vars := site.Vars{}
	for _, key := range note.Keys() {
		v, _ := note.Get(key)
		switch v.Kind() {
		case model.KindString, model.KindNumber, model.KindBool:
			vars[key] = site.SafeName(v.Scalar())
		}
	}
	user := note.Object("user")
	vars["user_id"] = site.SafeName(note.String("userId"))
	vars["username"] = site.SafeName(user.String("username"))

	createdAt, err := time.Parse(time.RFC3339, note.String("createdAt"))
	if err != nil {
		return nil, model.NewNormalizationFailureError("createdAt の解析に失敗しました: " + err.Error())
	}
	vars.SetTime("created_at", createdAt)
	return vars, nil
}

// storageDest はファイルごとの保存先とファイル名を返す。{filename} は拡張子を除いた元のファイル名。
func (p *Parser) storageDest(base site.Vars, name string) (destination, filename string) {
	extension := path.Ext(name)
	vars := make(site.Vars, len(base)+2)
	for k, v := range base {
		vars[k] = v
	}
	vars["filename"] = site.SafeName(strings.TrimSuffix(name, extension))
	vars["extension"] = extension

	return site.Render(p.Template.Destination, vars), site.Render(p.Template.Filename, vars) + extension
}
