package utils

import (
	"net/mail"
	"strings"
)

// ValidateEmail 校验邮箱格式，返回去除首尾空白后的地址。
// 邮箱按原样（区分大小写）保存，不做小写化。
func ValidateEmail(input string) (string, bool, string) {
	email := strings.TrimSpace(input)
	if email == "" {
		return "", false, "邮箱不能为空"
	}
	if len(email) > 255 {
		return "", false, "邮箱长度不能超过 255 个字符"
	}
	if strings.ContainsAny(email, "\r\n") {
		return "", false, "邮箱格式不正确"
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", false, "邮箱格式不正确"
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return "", false, "邮箱格式不正确"
	}
	return email, true, ""
}
