package auth

import (
	"net/url"
	"strings"
)

// DefaultRedirectTarget はリダイレクト候補が全滅した場合の遷移先。
const DefaultRedirectTarget = "/"

// ResolveRedirect はコールバック後のリダイレクト先を1パスで解決する。
// candidatesは優先度順（redirectToクエリ、nextクエリ、Cookie、Refererの順で
// 呼び出し側が並べる）に評価され、妥当性条件を最初に満たした候補が勝つ。
// どの候補も満たさなければDefaultRedirectTargetを返す。
//
// 妥当性条件は1つの述語に集約されている:
//   - 空でない
//   - baseURL基準で相対解決したとき同一オリジンに収まる
//   - 解決後のパスが/auth配下でない（認証エンドポイントへのループ防止）
//
// 戻り値は常にパス+クエリ形式の同一オリジン相対URL。
// 外部オリジンの候補は警告なく捨てられ、後続の候補に落ちる。
func ResolveRedirect(candidates []string, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return DefaultRedirectTarget
	}

	for _, candidate := range candidates {
		if target, ok := resolveCandidate(candidate, base); ok {
			return target
		}
	}
	return DefaultRedirectTarget
}

// resolveCandidate は候補1つに妥当性述語を適用する。
// 妥当な場合はパス+クエリ形式に正規化した遷移先を返す。
func resolveCandidate(candidate string, base *url.URL) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}

	// 相対URLはbase基準で解決する。絶対URLはそのままオリジン比較にかける。
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != base.Scheme || resolved.Host != base.Host {
		return "", false
	}

	path := resolved.Path
	if path == "" {
		path = "/"
	}

	// 認証エンドポイントへ戻すとリダイレクトループになる
	if path == "/auth" || strings.HasPrefix(path, "/auth/") {
		return "", false
	}

	target := path
	if resolved.RawQuery != "" {
		target += "?" + resolved.RawQuery
	}
	return target, true
}

// AppendErrorMarker はリダイレクト先にエラーマーカーを付与する。
// コールバックは失敗してもエラーページを描画せず、必ず解決済みの
// 遷移先へ?error=付きでリダイレクトする。
func AppendErrorMarker(target, code string) string {
	if code == "" {
		return target
	}
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	return target + separator + "error=" + url.QueryEscape(code)
}
