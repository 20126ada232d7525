package service

import (
	"context"
	"errors"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/model"
	repo "stop-spying-server/internal/repository"
	"stop-spying-server/internal/utils"
)

// Issue 为邮箱签发新的登录令牌，并作废该邮箱此前未使用的令牌。
// 返回的原文只用于投递，库中只保存摘要。
func (s *MagicLinkService) Issue(ctx context.Context, email string) (string, error) {
	rawToken, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", commonpkg.NewInternalError("生成登录令牌失败")
	}

	token := &model.MagicLinkToken{
		Email:     email,
		TokenHash: utils.HashToken(rawToken),
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := s.tokens.ReplaceForEmail(ctx, token); err != nil {
		return "", commonpkg.NewInternalError("保存登录令牌失败")
	}
	return rawToken, nil
}

// Verify 一次性消费令牌并返回其邮箱。
// 令牌错误、过期、已使用统一返回 ErrInvalidOrExpiredToken。
func (s *MagicLinkService) Verify(ctx context.Context, rawToken string) (string, error) {
	if rawToken == "" {
		return "", ErrInvalidOrExpiredToken
	}

	token, err := s.tokens.ConsumeByHash(ctx, utils.HashToken(rawToken), s.now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrConditionNotMet) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", commonpkg.NewInternalError("校验登录令牌失败")
	}
	return token.Email, nil
}

// ResolveOrCreateUser 按邮箱查找用户，不存在时创建。
func (s *MagicLinkService) ResolveOrCreateUser(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.FirstOrCreateByEmail(ctx, email)
	if err != nil {
		return nil, commonpkg.NewInternalError("读取用户信息失败")
	}
	return user, nil
}

// CleanupExpired 删除已过期的令牌（无论是否已使用）。
func (s *MagicLinkService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now().UTC())
}
