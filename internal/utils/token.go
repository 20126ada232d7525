package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// OpaqueTokenBytes 是随机令牌的熵（字节）。
const OpaqueTokenBytes = 32

// GenerateOpaqueToken 生成 URL 安全的随机令牌，原文只交给调用方，不落库。
func GenerateOpaqueToken() (string, error) {
	randomBytes := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken 对令牌原文做 SHA-256，返回十六进制摘要，库中只保存并比较摘要。
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
