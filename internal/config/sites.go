package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultCaptionMaxRunes はキャプション本文の既定の最大文字数。
const DefaultCaptionMaxRunes = 2000

// TemplateConfig はファイル名と保存先のテンプレート。空欄は各サイトの既定値を使用する。
type TemplateConfig struct {
	Filename    string `yaml:"filename"`
	Destination string `yaml:"destination"`
}

// DanbooruConfig はDanbooru系サイトの設定。
type DanbooruConfig struct {
	Login  string `yaml:"login"`
	APIKey string `yaml:"api_key"`
}

// KemonoConfig はKemonoの設定。
type KemonoConfig struct {
	Template        TemplateConfig `yaml:"template"`
	CaptionMaxRunes int            `yaml:"caption_max_runes"`
}

// MisskeyConfig はMisskeyの設定。
type MisskeyConfig struct {
	Instances []string       `yaml:"instances"`
	Template  TemplateConfig `yaml:"template"`
}

// SitesConfig はサイトごとの設定ファイルの内容。
//
//	danbooru:
//	  login: alice
//	  api_key: xxxx
//	kemono:
//	  template:
//	    filename: "{pretty_name}"
//	misskey:
//	  instances: [misskey.io, misskey.design]
type SitesConfig struct {
	Danbooru DanbooruConfig `yaml:"danbooru"`
	Kemono   KemonoConfig   `yaml:"kemono"`
	Misskey  MisskeyConfig  `yaml:"misskey"`
}

// LoadSites はサイト設定ファイルを読み込む。pathが空の場合は既定値を返す。
func LoadSites(path string) (*SitesConfig, error) {
	cfg := &SitesConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read sites config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse sites config %s: %w", path, err)
		}
	}

	if cfg.Kemono.CaptionMaxRunes <= 0 {
		cfg.Kemono.CaptionMaxRunes = DefaultCaptionMaxRunes
	}
	if (cfg.Danbooru.Login == "") != (cfg.Danbooru.APIKey == "") {
		return nil, fmt.Errorf("danbooru login and api_key must be set together")
	}
	return cfg, nil
}
