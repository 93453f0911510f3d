package provider

// Result はHTTPステータスコードに基づくプロバイダー応答の分類。
type Result int

const (
	// ResultOK は成功（2xx）。
	ResultOK Result = iota
	// ResultNotFound は投稿が存在しないことを示す（404/410）。
	ResultNotFound
	// ResultDenied は認証・権限エラー（401/403）。
	ResultDenied
	// ResultBackoff は呼び出し元がバックオフして再試行すべき応答（429/5xx）。
	ResultBackoff
	// ResultUnknown はその他のステータスコード。
	ResultUnknown
)

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) Result {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ResultOK
	case statusCode == 404 || statusCode == 410:
		return ResultNotFound
	case statusCode == 401 || statusCode == 403:
		return ResultDenied
	case statusCode == 429:
		return ResultBackoff
	case statusCode >= 500:
		return ResultBackoff
	default:
		return ResultUnknown
	}
}
