package model

import (
	"errors"
	"fmt"
)

// APIError は取り込みパイプラインの統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含み、呼び出し元のフロントエンドがそのまま表示できる。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: routing, provider, normalize, storage
	Action   string // ユーザー向け対処方法
	Source   string // 制限付きコンテンツの出典URL（RESTRICTED_CONTENTのみ）
	Err      error  // 下位レイヤーの原因
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeRoutingFailure       = "ROUTING_FAILURE"
	ErrCodePostNotFound         = "POST_NOT_FOUND"
	ErrCodeRestrictedContent    = "RESTRICTED_CONTENT"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeNormalizationFailure = "NORMALIZATION_FAILURE"
	ErrCodePersistenceFailure   = "PERSISTENCE_FAILURE"
)

// HasCode はerrがcodeを持つAPIErrorを含むかどうかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}

// AsAPIError はerrからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	return apiErr, true
}

// NewRoutingFailureError はURLがどのプロバイダーにも一致しなかった場合のエラーを生成する。
func NewRoutingFailureError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeRoutingFailure,
		Message:  fmt.Sprintf("対応していないURLです: %s", url),
		Category: "routing",
		Action:   "対応サイトの投稿URLを指定してください。",
	}
}

// NewPostNotFoundError は投稿が存在しない場合のエラーを生成する。
func NewPostNotFoundError(site, id string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("投稿が見つかりません: %s %s", site, id),
		Category: "provider",
		Action:   "投稿IDまたはURLを確認してください。",
	}
}

// NewRestrictedContentError は閲覧権限のない投稿の場合のエラーを生成する。
// sourceには投稿に記載された出典URLを格納する。
func NewRestrictedContentError(site, source string) *APIError {
	return &APIError{
		Code:     ErrCodeRestrictedContent,
		Message:  fmt.Sprintf("%s のこの投稿は上位アカウントでのみ閲覧できます。出典: %s", site, source),
		Category: "provider",
		Action:   "出典元のURLから取得してください。",
		Source:   source,
	}
}

// NewProviderUnavailableError はプロバイダーAPIへの通信失敗エラーを生成する。
func NewProviderUnavailableError(reason string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  fmt.Sprintf("プロバイダーAPIの呼び出しに失敗しました: %s", reason),
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewNormalizationFailureError は投稿の正規化に失敗した場合のエラーを生成する。
// プロバイダーのスキーマ変更を示すため、呼び出し元で警告ログを出すこと。
func NewNormalizationFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNormalizationFailure,
		Message:  fmt.Sprintf("投稿の解析に失敗しました: %s", reason),
		Category: "normalize",
		Action:   "サイトの仕様が変更された可能性があります。管理者に連絡してください。",
	}
}

// NewPersistenceFailureError は保存処理の失敗エラーを生成する。
func NewPersistenceFailureError(err error) *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailure,
		Message:  "取り込み結果の保存に失敗しました。",
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}
