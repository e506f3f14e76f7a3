// 包 auth 管理 OAuth2 令牌生命周期：
// - 令牌以 JSON 文件持久化（保留服务端返回的附加字段）
// - 未授权时走交互式授权码流程，过期时用 refresh_token 刷新
// - 每次状态变化先落盘再返回
package auth

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"golang.org/x/oauth2"
)

// Token 为持久化的令牌记录。expires_at 为 Unix 秒（可带小数），
// 其它字段原样保存在 Extra 中，写回时不丢失。
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    float64
	Extra        map[string]json.RawMessage
}

var knownFields = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token_type":    true,
	"expires_at":    true,
}

// Expiry 返回过期时间。
func (t *Token) Expiry() time.Time {
	sec, frac := math.Modf(t.ExpiresAt)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// ValidAt 判断令牌在 now 时刻是否有效（expires_at 严格大于当前时间）。
func (t *Token) ValidAt(now time.Time) bool {
	return t.Expiry().After(now)
}

func (t *Token) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(t.Extra)+4)
	for k, v := range t.Extra {
		if !knownFields[k] {
			m[k] = v
		}
	}
	m["access_token"] = t.AccessToken
	m["token_type"] = t.TokenType
	m["expires_at"] = t.ExpiresAt
	if t.RefreshToken != "" {
		m["refresh_token"] = t.RefreshToken
	}
	return json.Marshal(m)
}

func (t *Token) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = Token{}
	if err := unmarshalField(raw, "access_token", &t.AccessToken); err != nil {
		return err
	}
	if err := unmarshalField(raw, "refresh_token", &t.RefreshToken); err != nil {
		return err
	}
	if err := unmarshalField(raw, "token_type", &t.TokenType); err != nil {
		return err
	}
	if err := unmarshalField(raw, "expires_at", &t.ExpiresAt); err != nil {
		return err
	}
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]json.RawMessage)
		}
		t.Extra[k] = v
	}
	return nil
}

func unmarshalField(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("token field %s: %w", key, err)
	}
	return nil
}

// fromOAuth2 将 x/oauth2 的令牌转换为持久化形式。
func fromOAuth2(ot *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  ot.AccessToken,
		RefreshToken: ot.RefreshToken,
		TokenType:    ot.TokenType,
		Extra:        map[string]json.RawMessage{},
	}
	if !ot.Expiry.IsZero() {
		t.ExpiresAt = float64(ot.Expiry.UnixNano()) / 1e9
	}
	if ot.ExpiresIn > 0 {
		t.Extra["expires_in"] = json.RawMessage(fmt.Sprintf("%d", ot.ExpiresIn))
	}
	for _, k := range []string{"scope", "user_id"} {
		if v := ot.Extra(k); v != nil {
			if b, err := json.Marshal(v); err == nil {
				t.Extra[k] = b
			}
		}
	}
	return t
}
