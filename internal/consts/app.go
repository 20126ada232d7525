package consts

const (
	ApplicationName    = "Stop Spying On Me"
	ApplicationVersion = "0.4.0"
	// 环境变量统一前缀，例如 STOPSPY_SESSION_SECRET_KEY
	EnvPrefix = "STOPSPY"
)

// 构建信息，发布时通过 -ldflags "-X stop-spying-server/internal/consts.BuildCommit=..." 注入
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)
