package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stop-spying-server/internal/config"
	"stop-spying-server/internal/consts"
	"stop-spying-server/internal/db"
	"stop-spying-server/internal/di"
	"stop-spying-server/internal/logging"
	"stop-spying-server/internal/service"
	"stop-spying-server/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const secretBytes = 48

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:           "stop-spying-server",
		Short:         "Passwordless authentication service (magic links and passkeys)",
		Version:       consts.ApplicationVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configDir, "config", "config", "Directory containing config.yaml")

	cmd.AddCommand(newServeCommand(&configDir))
	cmd.AddCommand(newCleanupCommand(&configDir))
	cmd.AddCommand(newGenSecretCommand())
	cmd.AddCommand(newRoutesCommand(&configDir))
	return cmd
}

type appRuntime struct {
	app   *di.Application
	close func()
}

// bootstrap 加载配置、初始化日志与存储并完成依赖注入。
func bootstrap(configDir string) (*appRuntime, error) {
	config.InitConfig(configDir)
	cfg := config.Get()
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	gdb := db.InitDB(cfg.Database)
	redisClient := service.NewRedisClient(cfg.Redis)

	app, err := di.InitializeApplication(cfg, gdb, redisClient)
	if err != nil {
		_ = db.Close(gdb)
		_ = service.CloseRedisClient(redisClient)
		return nil, fmt.Errorf("初始化应用失败: %w", err)
	}

	return &appRuntime{
		app: app,
		close: func() {
			if err := service.CloseRedisClient(redisClient); err != nil {
				slog.Warn("⚠️ 关闭 Redis 失败", "error", err)
			}
			if err := db.Close(gdb); err != nil {
				slog.Warn("⚠️ 关闭数据库失败", "error", err)
			}
		},
	}, nil
}

func newServeCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(*configDir)
			if err != nil {
				return err
			}
			defer rt.close()
			return serve(cmd.Context(), rt.app, config.Get())
		},
	}
}

func serve(parent context.Context, app *di.Application, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("初始化链路追踪失败: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("⚠️ 链路追踪关闭失败", "error", err)
		}
	}()

	gin.SetMode(cfg.Server.Mode)
	r, err := newEngine(app)
	if err != nil {
		return err
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = "stop-spying-server"
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(r, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runSweepLoop(ctx, app, time.Duration(cfg.Cleanup.IntervalSeconds)*time.Second)

	errCh := make(chan error, 1)
	go func() {
		printWelcomeMessage(os.Stdout, cfg)
		slog.Info("🚀 服务启动成功", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("🛑 正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务强制关闭: %w", err)
	}
	slog.Info("✅ 服务已退出")
	return nil
}

// newEngine 创建 gin 引擎并注册全部路由。
func newEngine(app *di.Application) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	if err := app.Router.Init(r); err != nil {
		return nil, err
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API not found"})
	})
	return r, nil
}

// runSweepLoop 定期清理过期的登录令牌与会话；interval 非正数时不启动。
func runSweepLoop(ctx context.Context, app *di.Application, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.UseCase.System.Sweep(ctx); err != nil {
				slog.Warn("⚠️ 定时清理失败", "error", err)
			}
		}
	}
}

func newCleanupCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired magic link tokens and sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(*configDir)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			result, err := rt.app.UseCase.System.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d magic link tokens, %d sessions\n", result.MagicLinkTokens, result.Sessions)
			return nil
		},
	}
}

func newGenSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-secret",
		Short: "Print a random URL-safe secret for session.secret_key",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := generateSecret(rand.Reader, secretBytes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}

func generateSecret(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newRoutesCommand(configDir *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Export registered routes as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(*configDir)
			if err != nil {
				return err
			}
			defer rt.close()

			gin.SetMode(gin.ReleaseMode)
			r, err := newEngine(rt.app)
			if err != nil {
				return err
			}
			if err := exportAPI(r, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ 路由已成功导出到 %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "routes.json", "Destination file")
	return cmd
}

type routeInfo struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

func exportAPI(r *gin.Engine, output string) error {
	routes := r.Routes()
	exportList := make([]routeInfo, 0, len(routes))
	for _, route := range routes {
		exportList = append(exportList, routeInfo{
			Method:  route.Method,
			Path:    route.Path,
			Handler: route.Handler,
		})
	}

	file, err := json.MarshalIndent(exportList, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(output, file, 0o644)
}

func printWelcomeMessage(w io.Writer, cfg config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, " ┌───────────────────────────────────────────────────────┐")
	fmt.Fprintf(w, " │   🚀  %s\n", consts.ApplicationName)
	fmt.Fprintln(w, " ├───────────────────────────────────────────────────────┤")
	fmt.Fprintf(w, " │   📦  版本     : %s\n", consts.ApplicationVersion)
	fmt.Fprintf(w, " │   🔥  服务端口 : %s\n", cfg.Server.Port)
	fmt.Fprintf(w, " │   🔑  RP ID    : %s\n", cfg.WebAuthn.RPID)
	fmt.Fprintln(w, " └───────────────────────────────────────────────────────┘")
	fmt.Fprintln(w)
}
