package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/model"
	repo "stop-spying-server/internal/repository"
	"stop-spying-server/internal/utils"

	"gorm.io/gorm"
)

const (
	maxUserAgentRunes = 512
	maxIPAddressLen   = 45
)

// SessionMetadata 是创建会话时可选的客户端信息。
type SessionMetadata struct {
	UserAgent string
	IPAddress string
}

func (s *SessionService) MaxAge() time.Duration {
	return s.maxAge
}

// Create 为用户创建会话记录，并返回绑定 {令牌原文, 会话 ID} 的签名信封。
func (s *SessionService) Create(ctx context.Context, userID uint, meta SessionMetadata) (string, *model.Session, error) {
	rawToken, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", nil, commonpkg.NewInternalError("生成会话令牌失败")
	}

	// 截断到秒，与信封 iat/exp 的精度一致
	now := s.now().UTC().Truncate(time.Second)
	session := &model.Session{
		UserID:       userID,
		TokenHash:    utils.HashToken(rawToken),
		ExpiresAt:    now.Add(s.maxAge),
		UserAgent:    optionalString(truncateRunes(meta.UserAgent, maxUserAgentRunes)),
		IPAddress:    optionalString(truncateBytes(meta.IPAddress, maxIPAddressLen)),
		LastActivity: &now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, commonpkg.NewInternalError("创建会话失败")
	}

	signed, err := s.signer.SignAt(rawToken, session.ID, now)
	if err != nil {
		return "", nil, commonpkg.NewInternalError("签发会话失败")
	}
	return signed, session, nil
}

// Verify 先校验信封签名与签发时间，再校验会话记录并刷新 last_activity。
func (s *SessionService) Verify(ctx context.Context, signed string) (*model.Session, *model.User, error) {
	claims, err := s.parseEnvelope(signed)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.TouchActive(ctx, claims.SessionID, utils.HashToken(claims.Token), s.now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repo.ErrConditionNotMet) {
			return nil, nil, ErrInvalidOrExpiredToken
		}
		return nil, nil, commonpkg.NewInternalError("校验会话失败")
	}

	user := session.User
	session.User = model.User{}
	return session, &user, nil
}

// Destroy 删除信封对应的会话记录；信封无效时视为无可删除的会话。
func (s *SessionService) Destroy(ctx context.Context, signed string) (bool, error) {
	claims, err := s.parseEnvelope(signed)
	if err != nil {
		return false, nil
	}

	deleted, err := s.sessions.DeleteByIDAndHash(ctx, claims.SessionID, utils.HashToken(claims.Token))
	if err != nil {
		return false, commonpkg.NewInternalError("删除会话失败")
	}
	return deleted, nil
}

// CleanupExpired 删除已过期的会话记录。
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now().UTC())
}

func (s *SessionService) parseEnvelope(signed string) (*utils.SessionClaims, error) {
	if signed == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	claims, err := s.signer.Parse(signed)
	if err != nil {
		if errors.Is(err, utils.ErrEnvelopeExpired) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, ErrSignatureInvalid
	}
	return claims, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

func truncateBytes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
