package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/url"
	"strings"
	"text/template"
	"time"

	"stop-spying-server/internal/logging"
)

// MailTransport 负责把一封已渲染好的邮件投递出去。
type MailTransport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailMessage 是一封待投递的纯文本邮件。
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

const magicLinkSubject = "Your secure login link"

var magicLinkTemplate = template.Must(template.New("magic-link").Parse(`Hello,

Use the link below to sign in to Stop Spying On Me:

{{.Link}}

This link expires in {{.Minutes}} minutes and can only be used once.
If you did not request it, you can ignore this email.
`))

// RenderMagicLink 渲染登录链接邮件。
func (s *EmailService) RenderMagicLink(email, rawToken string) (EmailMessage, error) {
	link := strings.TrimRight(s.opts.Origin, "/") + "/auth/verify?token=" + url.QueryEscape(rawToken)

	minutes := int(s.opts.LinkTTL / time.Minute)
	if minutes <= 0 {
		minutes = 15
	}

	var body bytes.Buffer
	if err := magicLinkTemplate.Execute(&body, struct {
		Link    string
		Minutes int
	}{Link: link, Minutes: minutes}); err != nil {
		return EmailMessage{}, err
	}
	return EmailMessage{To: email, Subject: magicLinkSubject, Body: body.String()}, nil
}

// Dispatch 在独立 goroutine 中投递邮件，不阻塞调用方；
// 返回的 channel 会收到且仅收到一次投递结果。
func (s *EmailService) Dispatch(ctx context.Context, msg EmailMessage) <-chan bool {
	result := make(chan bool, 1)
	go func() {
		defer close(result)
		if err := s.transport.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
			slog.Warn("⚠️ 邮件投递失败", "to", logging.MaskEmail(msg.To), "error", err)
			result <- false
			return
		}
		result <- true
	}()
	return result
}

type smtpTransport struct {
	opts SMTPOptions
}

func (t *smtpTransport) Send(ctx context.Context, to, subject, body string) error {
	if t.opts.Host == "" {
		return fmt.Errorf("SMTP Host 未配置")
	}

	fromHeader, fromAddr, err := parseAddressForHeader(t.opts.From)
	if err != nil {
		return err
	}
	toHeader, toAddr, err := parseAddressForHeader(to)
	if err != nil {
		return err
	}
	msg, err := buildEmailMessage(fromHeader, toHeader, subject, body)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if t.opts.Username != "" {
		auth = smtp.PlainAuth("", t.opts.Username, t.opts.Password, t.opts.Host)
	}
	addr := net.JoinHostPort(t.opts.Host, fmt.Sprintf("%d", t.opts.Port))

	// 如果配置了 SSL (通常是端口 465)，需要使用 tls 连接
	if t.opts.SSL {
		return t.sendWithSSL(ctx, addr, auth, fromAddr, toAddr, msg)
	}
	return t.sendWithStartTLS(ctx, addr, auth, fromAddr, toAddr, msg)
}

func (t *smtpTransport) sendWithSSL(ctx context.Context, addr string, auth smtp.Auth, from, to string, msg []byte) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config:    &tls.Config{ServerName: t.opts.Host, MinVersion: tls.VersionTLS12},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("TLS 连接失败: %w", err)
	}
	client, err := smtp.NewClient(conn, t.opts.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}
	defer client.Close()
	return deliver(client, auth, from, to, msg)
}

func (t *smtpTransport) sendWithStartTLS(ctx context.Context, addr string, auth smtp.Auth, from, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("连接 SMTP 服务器失败: %w", err)
	}
	client, err := smtp.NewClient(conn, t.opts.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.opts.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("STARTTLS 失败: %w", err)
		}
	} else if t.opts.StartTLS {
		return fmt.Errorf("SMTP 服务器不支持 STARTTLS")
	}
	return deliver(client, auth, from, to, msg)
}

func deliver(client *smtp.Client, auth smtp.Auth, from, to string, msg []byte) error {
	// 认证
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("SMTP 认证失败: %w", err)
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM 命令失败: %w", err)
	}
	// 不在错误中携带具体邮箱地址，防止日志泄露敏感信息
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO 命令失败: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA 命令失败: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("关闭 DATA 失败: %w", err)
	}
	return client.Quit()
}

func parseAddressForHeader(input string) (string, string, error) {
	if err := rejectCRLF(input, "address"); err != nil {
		return "", "", err
	}

	addr, err := mail.ParseAddress(input)
	if err != nil {
		return "", "", err
	}

	headerValue := addr.String()
	if err := rejectCRLF(headerValue, "address"); err != nil {
		return "", "", err
	}

	return headerValue, addr.Address, nil
}

func buildEmailMessage(fromHeader, toHeader, subject, body string) ([]byte, error) {
	if err := rejectCRLF(subject, "subject"); err != nil {
		return nil, err
	}
	encodedSubject := mime.QEncoding.Encode("UTF-8", subject)
	dateStr := time.Now().Format(time.RFC1123Z)

	header := fmt.Sprintf("Date: %s\r\nFrom: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n",
		dateStr, fromHeader, toHeader, encodedSubject)
	// 正文统一使用 CRLF 换行
	normalized := strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n")
	return []byte(header + normalized), nil
}

func rejectCRLF(value string, field string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("invalid %s header: CRLF not allowed", field)
	}
	return nil
}
