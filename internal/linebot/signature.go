package linebot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ValidateSignature X-Line-Signature ヘッダーを検証する。
// 署名はリクエストボディの HMAC-SHA256 を Base64 化したもの。
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}
