// Package nameformat はタグ文字列を表示用の名前に整形する純粋関数を提供する。
// タイトルとファイル名の合成で使用される。
package nameformat

import (
	"regexp"
	"strconv"
	"strings"
)

// maxCharacters はキャラクター名を列挙する最大数。超過分は "and N more" で省略する。
const maxCharacters = 5

var (
	// parenthesisPattern は "_(...)" 形式の接尾辞（作品名の曖昧さ回避など）にマッチする。
	parenthesisPattern = regexp.MustCompile(`_\(.*\)`)
	// separatorPattern はパス区切り文字にマッチする。
	separatorPattern = regexp.MustCompile(`[\\/]`)
)

// Split はスペース区切りのタグ文字列を名前のリストに分割する。
// 連続するスペースで生じる空の要素は含めない。空文字列の場合は空リストを返す。
func Split(tagString string) []string {
	return strings.FieldsFunc(tagString, func(r rune) bool { return r == ' ' })
}

// Normalize はタグ名を表示用に正規化する。
// "_(...)" 接尾辞を除去し、アンダースコアとパス区切り文字をスペースに置換する。
func Normalize(name string) string {
	name = parenthesisPattern.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "_", " ")
	return separatorPattern.ReplaceAllString(name, " ")
}

// Sentence は名前のリストを文章形式で連結する（"A, B and C"）。
func Sentence(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

// More はリストの先頭要素に " and N more" を付与する。
func More(head string, n int) string {
	return head + " and " + strconv.Itoa(n) + " more"
}

// FormatCharacters はキャラクタータグを整形する。
// 5件以下は全件を文章形式で連結し、超過時は先頭5件に " and (件数-1) more" を付与する。
func FormatCharacters(tagString string) string {
	names := normalizeAll(Split(tagString))
	size := len(names)
	if size == 0 {
		return ""
	}
	if size <= maxCharacters {
		return Sentence(names)
	}
	// 省略数は表示件数ではなく総数から1を引いた値
	return More(Sentence(names[:maxCharacters]), size-1)
}

// FormatCopyrights は作品タグを整形する。
// 1件はそのまま、複数件は先頭に " and (件数-1) more" を付与する。
func FormatCopyrights(tagString string) string {
	names := normalizeAll(Split(tagString))
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return More(names[0], len(names)-1)
}

// FormatArtists は作者タグを文章形式で連結してから正規化する。省略はしない。
func FormatArtists(tagString string) string {
	names := Split(tagString)
	if len(names) == 0 {
		return ""
	}
	return Normalize(Sentence(names))
}

func normalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Normalize(n)
	}
	return out
}
