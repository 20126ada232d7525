package service

import (
	"crypto/rand"
	"errors"
	"time"

	"stop-spying-server/internal/consts"
	repo "stop-spying-server/internal/repository"
	"stop-spying-server/internal/utils"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Clock 返回当前时间；测试中替换为固定时钟以验证过期边界。
type Clock func() time.Time

// SystemClock 统一使用 UTC，保证数据库中时间比较一致。
func SystemClock() time.Time {
	return time.Now().UTC()
}

type MagicLinkOptions struct {
	TTL time.Duration
}

// SessionOptions 中的 MaxAge 同时用于签名信封、会话记录与 Cookie。
type SessionOptions struct {
	Secret []byte
	MaxAge time.Duration
}

type PasskeyOptions struct {
	RPID       string
	RPName     string
	Origin     string
	Timeout    time.Duration
	MaxPerUser int64
}

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
	StartTLS bool
	// Origin 与 LinkTTL 用于渲染登录链接。
	Origin  string
	LinkTTL time.Duration
}

type MagicLinkService struct {
	tokens repo.MagicLinkTokenStore
	users  repo.UserStore
	ttl    time.Duration
	now    Clock
}

type SessionService struct {
	sessions repo.SessionStore
	signer   *utils.EnvelopeSigner
	maxAge   time.Duration
	now      Clock
}

type PasskeyService struct {
	passkeys   repo.PasskeyStore
	users      repo.UserStore
	ceremonies *CeremonyStore
	webauthn   *webauthn.WebAuthn
	maxPerUser int64
	decoySalt  []byte
	now        Clock
}

type EmailService struct {
	opts      SMTPOptions
	transport MailTransport
}

func NewMagicLinkService(tokens repo.MagicLinkTokenStore, users repo.UserStore, opts MagicLinkOptions, clock Clock) *MagicLinkService {
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if clock == nil {
		clock = SystemClock
	}
	return &MagicLinkService{tokens: tokens, users: users, ttl: opts.TTL, now: clock}
}

func NewSessionService(sessions repo.SessionStore, opts SessionOptions, clock Clock) (*SessionService, error) {
	if clock == nil {
		clock = SystemClock
	}
	signer, err := utils.NewEnvelopeSigner(opts.Secret, opts.MaxAge)
	if err != nil {
		return nil, err
	}
	signer = signer.WithClock(clock)
	return &SessionService{sessions: sessions, signer: signer, maxAge: opts.MaxAge, now: clock}, nil
}

func NewPasskeyService(passkeys repo.PasskeyStore, users repo.UserStore, ceremonies *CeremonyStore, opts PasskeyOptions, clock Clock) (*PasskeyService, error) {
	if ceremonies == nil {
		return nil, errors.New("passkey ceremony store is nil")
	}
	if clock == nil {
		clock = SystemClock
	}
	client, err := newWebAuthnClient(opts)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	maxPerUser := opts.MaxPerUser
	if maxPerUser <= 0 {
		maxPerUser = consts.MaxUserPasskeyCount
	}
	return &PasskeyService{
		passkeys:   passkeys,
		users:      users,
		ceremonies: ceremonies,
		webauthn:   client,
		maxPerUser: maxPerUser,
		decoySalt:  salt,
		now:        clock,
	}, nil
}

// NewEmailService 创建邮件服务；transport 为 nil 时使用 SMTP 中继投递。
func NewEmailService(opts SMTPOptions, transport MailTransport) *EmailService {
	if transport == nil {
		transport = &smtpTransport{opts: opts}
	}
	return &EmailService{opts: opts, transport: transport}
}
