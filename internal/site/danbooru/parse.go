package danbooru

import (
	"strconv"
	"strings"

	"github.com/hitoshi/booruvault/internal/model"
	"github.com/hitoshi/booruvault/internal/nameformat"
	"github.com/hitoshi/booruvault/internal/site"
)

// ParsePost は投稿のメタデータから画像とキャプションを構築する。
// ネットワークやDBにアクセスしない純粋関数。
func ParsePost(siteName string, post *model.Metadata) (*model.Illust, error) {
	id, ok := post.Int("id")
	if !ok {
		return nil, model.NewNormalizationFailureError("投稿IDがありません")
	}
	fileURL := post.String("file_url")
	if fileURL == "" {
		return nil, model.NewNormalizationFailureError("file_url がありません")
	}

	title, filename := Names(siteName, id, post)

	illust := &model.Illust{
		Images:   []model.Image{},
		Files:    []model.File{},
		Metadata: post,
	}
	if site.IsImage(fileURL) {
		displayURL := post.String("large_file_url")
		if displayURL == "" {
			displayURL = fileURL
		}
		size, _ := post.Int("file_size")
		width, _ := post.Int("image_width")
		height, _ := post.Int("image_height")
		illust.Images = append(illust.Images, model.Image{
			Filename:    filename,
			URL:         displayURL,
			OriginalURL: fileURL,
			SizeBytes:   size,
			Width:       int(width),
			Height:      int(height),
		})
	} else {
		// うごイラ（zip）や動画など画像以外の投稿
		illust.Files = append(illust.Files, model.File{
			Filename: filename,
			URL:      fileURL,
		})
	}

	illust.Caption = model.NewCaption().
		Set(model.CaptionTitle, title).
		Set(model.CaptionArtists, post.String("tag_string_artist")).
		Set(model.CaptionURL, PostURL(siteName, id)).
		Set(model.CaptionTags, hashtags(post.String("tag_string"))).
		Set(model.CaptionParentID, rawValue(post, "parent_id")).
		Set(model.CaptionPixivID, rawValue(post, "pixiv_id")).
		Set(model.CaptionHasChildren, rawValue(post, "has_children"))

	return illust, nil
}

// Names は投稿のタグからタイトルとファイル名を合成する。
//
//	title    = "<characters> " + "(<copyrights>) "
//	filename = "<site> <id> " + title + "drawn by <artists>" + <extension>
//
// キャラクターが無い場合、作品名は括弧で囲まない。
func Names(siteName string, id int64, post *model.Metadata) (title, filename string) {
	characters := nameformat.FormatCharacters(post.String("tag_string_character"))
	copyrights := nameformat.FormatCopyrights(post.String("tag_string_copyright"))
	artists := nameformat.FormatArtists(post.String("tag_string_artist"))
	extension := site.Extension(post.String("file_url"))

	var b strings.Builder
	if characters != "" {
		b.WriteString(characters + " ")
	}
	if copyrights != "" {
		if characters != "" {
			copyrights = "(" + copyrights + ")"
		}
		b.WriteString(copyrights + " ")
	}
	title = b.String()
	if artists != "" {
		b.WriteString("drawn by " + artists)
	}
	filename = siteName + " " + strconv.FormatInt(id, 10) + " " + b.String() + extension
	return title, filename
}

// PostURL は投稿ページのURLを返す。
func PostURL(siteName string, id int64) string {
	return "https://" + siteName + ".donmai.us/posts/" + strconv.FormatInt(id, 10)
}

// hashtags はスペース区切りのタグを "#tag " 形式で連結する。
func hashtags(tagString string) string {
	var b strings.Builder
	for _, tag := range strings.Split(tagString, " ") {
		if tag == "" {
			continue
		}
		b.WriteString("#" + tag + " ")
	}
	return b.String()
}

func rawValue(post *model.Metadata, key string) any {
	v, ok := post.Get(key)
	if !ok {
		return nil
	}
	return v.Interface()
}
