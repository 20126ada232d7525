package utils

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionEnvelopeIssuer = "stop-spying-server"
	sessionEnvelopeType   = "session"
	sessionKeyInfo        = "stop-spying-server/session-envelope/v1"
)

var (
	// ErrEnvelopeSignature 签名无效、格式损坏或使用了其他密钥。
	ErrEnvelopeSignature = errors.New("session envelope signature invalid")
	// ErrEnvelopeExpired 信封自带的签发时间已超过最大有效期。
	ErrEnvelopeExpired = errors.New("session envelope expired")
)

// SessionClaims 是会话 Cookie 中的签名载荷。
type SessionClaims struct {
	Token     string `json:"tok"`
	SessionID uint   `json:"sid"`
	Type      string `json:"type"` // "session"
	jwt.RegisteredClaims
}

// EnvelopeSigner 使用从服务端密钥派生出的子密钥签发、校验会话信封。
type EnvelopeSigner struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewEnvelopeSigner 通过 HKDF-SHA256 从 secret 派生签名密钥。
func NewEnvelopeSigner(secret []byte, maxAge time.Duration) (*EnvelopeSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if maxAge <= 0 {
		return nil, errors.New("session max age must be positive")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sessionKeyInfo)), key); err != nil {
		return nil, err
	}
	return &EnvelopeSigner{key: key, maxAge: maxAge, now: time.Now}, nil
}

// WithClock 替换时钟，便于测试过期边界。
func (s *EnvelopeSigner) WithClock(now func() time.Time) *EnvelopeSigner {
	clone := *s
	clone.now = now
	return &clone
}

func (s *EnvelopeSigner) MaxAge() time.Duration {
	return s.maxAge
}

// Sign 生成绑定 {rawToken, sessionID} 的签名信封，并写入签发时间。
func (s *EnvelopeSigner) Sign(rawToken string, sessionID uint) (string, error) {
	return s.SignAt(rawToken, sessionID, s.now())
}

// SignAt 以指定时间签发信封。iat/exp 只保留到秒（jwt.TimePrecision），
// 调用方传入已截断到秒的时间时，exp 与会话记录的过期时间完全一致。
func (s *EnvelopeSigner) SignAt(rawToken string, sessionID uint, issuedAt time.Time) (string, error) {
	claims := SessionClaims{
		Token:     rawToken,
		SessionID: sessionID,
		Type:      sessionEnvelopeType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.maxAge)),
			Issuer:    sessionEnvelopeIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Parse 校验签名与签发时间，返回 {rawToken, sessionID}。
func (s *EnvelopeSigner) Parse(envelope string) (*SessionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionEnvelopeIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)

	token, err := parser.ParseWithClaims(envelope, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrEnvelopeExpired
		}
		return nil, ErrEnvelopeSignature
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Type != sessionEnvelopeType || claims.IssuedAt == nil {
		return nil, ErrEnvelopeSignature
	}
	if claims.Token == "" || claims.SessionID == 0 {
		return nil, ErrEnvelopeSignature
	}

	// exp 由签发方写入；这里再按当前配置的 maxAge 校验签发时间，配置收紧后旧信封同样失效。
	if s.now().Sub(claims.IssuedAt.Time) > s.maxAge {
		return nil, ErrEnvelopeExpired
	}
	return claims, nil
}
