package consts

const (
	// ContextIdentityKey 是会话中间件写入 gin.Context 的已验证身份。
	ContextIdentityKey = "identity"
	// ContextRequestIDKey 是请求日志中间件写入的请求 ID。
	ContextRequestIDKey = "request_id"
	// SessionSecretMinBytes 是会话签名密钥的最小长度。
	SessionSecretMinBytes = 32
	// DevSessionSecret 仅用于 debug 模式下未配置密钥时兜底。
	DevSessionSecret = "stop_spying_dev_secret_do_not_use_in_release"
)
