// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Image は取得対象の画像1枚を表す。
// Width/Heightが0の場合はプロバイダーが寸法を返さなかったことを示す（未知扱い）。
type Image struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`          // 表示用解像度
	OriginalURL string `json:"original_url"` // 最高解像度（URLと同一の場合あり）
	Destination string `json:"destination,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// File は画像以外の成果物（動画、アーカイブなど）を表す。
type File struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Destination string `json:"destination,omitempty"`
}

// Illust は1件の取り込み結果を表す正規化済みエンティティ。
// 生成後は不変として扱い、呼び出し元に所有権を渡す。
type Illust struct {
	Images   []Image   `json:"images"`
	Files    []File    `json:"files"`
	Caption  *Caption  `json:"caption"`
	Metadata *Metadata `json:"metadata"`
}

// Caption キー
const (
	CaptionTitle       = "title"
	CaptionArtists     = "artists"
	CaptionAuthor      = "author"
	CaptionURL         = "url"
	CaptionOriginalURL = "original_url"
	CaptionTags        = "tags"
	CaptionText        = "text"
	CaptionContent     = "content"
	CaptionParentID    = "parent_id"
	CaptionPixivID     = "pixiv_id"
	CaptionHasChildren = "has_children"
)

// Caption は表示用のキーと値のマッピング。キーは設定順を保持する。
// 値は文字列、数値、真偽値またはnilのいずれか。
type Caption struct {
	keys   []string
	values map[string]any
}

// NewCaption は空のCaptionを生成する。
func NewCaption() *Caption {
	return &Caption{values: make(map[string]any)}
}

// Set はキーに値を設定する。
func (c *Caption) Set(key string, value any) *Caption {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
	return c
}

// Get はキーの値を返す。
func (c *Caption) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[key]
	return v, ok
}

// String はキーの値を文字列として返す。存在しない場合は空文字列。
func (c *Caption) String(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Keys はキーを設定順で返す。
func (c *Caption) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Text はキャプションを "key: value" 形式の行に整形する。
// nil、空文字列、falseの値は出力しない。
func (c *Caption) Text() string {
	if c == nil {
		return ""
	}
	var lines []string
	for _, k := range c.keys {
		v := c.values[k]
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
		case bool:
			if !t {
				continue
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %v", k, v))
	}
	return strings.Join(lines, "\n")
}

// MarshalJSON はキー順を保ったJSONオブジェクトを出力する。
func (c *Caption) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if c != nil {
		for i, k := range c.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(c.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
