package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はプロバイダー呼び出しで許可されるURLスキーム。
var allowedSchemes = []string{"https"}

// blockedNetworks はインスタンスのホストとして許可しないネットワーク範囲。
// safeurlはDialerレベルでDNS解決後のIPアドレスを検証するため、
// ここでは設定値として直接書かれたIPアドレスのみを対象とする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // クラウドメタデータIPを含む
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// ErrBlockedHost はホストがブロック対象の場合のエラー。
var ErrBlockedHost = errors.New("ブロック対象のホストです")

// SSRFGuard は設定で追加されるプロバイダーインスタンス（Misskeyなど）への
// リクエストを公開ネットワークに限定する。
type SSRFGuard struct{}

// NewSSRFGuard はSSRFGuardを生成する。
func NewSSRFGuard() *SSRFGuard {
	return &SSRFGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
// DNS解決後のIPアドレスに対して safeurl が拒否する。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateHost は設定されたインスタンスのホスト名を静的に検証する。
// スキーム、パス、ポートを含まないホスト名のみ受け付ける。
func (g *SSRFGuard) ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("ホストが空です")
	}

	parsed, err := url.Parse("https://" + host)
	if err != nil {
		return fmt.Errorf("ホストの解析に失敗しました: %w", err)
	}
	if parsed.Host != host || parsed.Port() != "" || parsed.User != nil {
		return fmt.Errorf("ホスト名のみを指定してください: %q", host)
	}

	hostname := parsed.Hostname()
	if ip := net.ParseIP(hostname); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedHost, ip)
		}
		return nil
	}

	lower := strings.ToLower(hostname)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || !strings.Contains(lower, ".") {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
