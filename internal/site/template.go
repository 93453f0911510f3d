package site

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TemplateTimeLayout はテンプレート内の日時プレースホルダーの書式。
const TemplateTimeLayout = "2006-01-02 15:04:05"

// Template はファイル名と保存先の "{name}" 形式のテンプレート。
type Template struct {
	Filename    string
	Destination string
}

// Vars はテンプレートのプレースホルダーに展開する値。
type Vars map[string]string

// SetTime は日時をTemplateTimeLayoutで設定する。ゼロ値の場合は空文字列。
func (v Vars) SetTime(key string, t time.Time) {
	if t.IsZero() {
		v[key] = ""
		return
	}
	v[key] = t.UTC().Format(TemplateTimeLayout)
}

// Render はテンプレート中の "{key}" を値で置換する。
// 未定義のプレースホルダーはそのまま残す。
func Render(tmpl string, vars Vars) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// pathUnsafe はファイル名の1要素として使えない文字。
var pathUnsafe = strings.NewReplacer("/", " ", "\\", " ")

// SafeName はファイル名の1要素に含められない区切り文字を置換し、NFCに正規化する。
func SafeName(s string) string {
	return norm.NFC.String(pathUnsafe.Replace(s))
}
