package site

import (
	"fmt"
	"regexp"
)

// route はURLパターンとアダプタの登録1件。
type route struct {
	pattern *regexp.Regexp
	adapter Adapter
}

// Match はルーティング結果を表す。
type Match struct {
	Adapter Adapter
	Params  Params
}

// RoutingKey はマッチしたアダプタとパラメータからルーティングキーを導出する。
func (m Match) RoutingKey() string {
	return RoutingKey(m.Adapter.KeySegments(m.Params)...)
}

// Router は登録順に評価される (パターン, アダプタ) のレジストリ。
// 登録はプロセス起動時の配線でのみ行い、以降は読み取り専用として並行利用できる。
type Router struct {
	routes []route
}

// NewRouter は空のRouterを生成する。
func NewRouter() *Router {
	return &Router{}
}

// Register はパターンとアダプタを登録する。
// パターンは名前付きキャプチャ（(?P<post_id>...)）でパラメータを定義する。
func (r *Router) Register(pattern string, adapter Adapter) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("URLパターンのコンパイルに失敗しました: %s: %w", pattern, err)
	}
	r.routes = append(r.routes, route{pattern: re, adapter: adapter})
	return nil
}

// MustRegister はRegisterを呼び出し、失敗時はpanicする。
func (r *Router) MustRegister(pattern string, adapter Adapter) {
	if err := r.Register(pattern, adapter); err != nil {
		panic(err)
	}
}

// Match はURLを登録順にパターンと照合し、最初に一致したアダプタとパラメータを返す。
// どのパターンにも一致しない場合はfalseを返す（エラーではない）。
func (r *Router) Match(rawURL string) (Match, bool) {
	for _, rt := range r.routes {
		sub := rt.pattern.FindStringSubmatch(rawURL)
		if sub == nil {
			continue
		}
		params := make(Params)
		for i, name := range rt.pattern.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			if sub[i] != "" {
				params[name] = sub[i]
			}
		}
		return Match{Adapter: rt.adapter, Params: params}, true
	}
	return Match{}, false
}

// Len は登録数を返す。
func (r *Router) Len() int {
	return len(r.routes)
}
