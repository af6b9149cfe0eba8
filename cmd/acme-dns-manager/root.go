package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"acme-dns-manager/internal/acme"
	"acme-dns-manager/internal/config"
	"acme-dns-manager/internal/core"
	"acme-dns-manager/internal/daemon"
	"acme-dns-manager/internal/logger"
)

const exampleConfig = `配置文件示例:
  acme:
    directory_url: "https://acme-staging-v02.api.letsencrypt.org/directory"
    email: "ops@example.com"
    account_file: "./account.json"

  aws:
    backends: [lightsail, route53]   # 默认使用默认凭证链

  providers:                         # 可选的其他DNS后端
    aliyun:
      access_key_id: "xxx"
      access_key_secret: "xxx"

  cname:
    _acme-challenge.www.example.org: "www.acme.example.com"

  certificates:
    - csr_file: "www.example.com.csr"
      output: "s3://my-bucket/certs/www.example.com.crt"
      chain_output: "./www.example.com.fullchain.pem"
      renew_days: 30

  concurrency: 4
  propagation_timeout: 90
  check_interval: 24`

// rootOptions 全局参数
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "acme-dns-manager",
		Short:         "通过 DNS-01 验证为 CSR 签发 ACME 证书 (支持 Lightsail、Route53 及阿里云、腾讯云、华为云 DNS)",
		Long:          "通过 DNS-01 验证为 CSR 签发 ACME 证书\n\n" + exampleConfig,
		SilenceUsage:  true,
		SilenceErrors: true,
		// 不带子命令时单次签发
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(opts)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "配置文件路径")

	rootCmd.AddCommand(
		newIssueCmd(opts),
		newRegisterCmd(opts),
		newDaemonCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newRestartCmd(opts),
		newStatusCmd(opts),
	)
	return rootCmd
}

// loadConfig 加载配置并按配置创建日志
func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, log, nil
}

// consoleLogger 不依赖配置文件的命令使用
func consoleLogger() *zap.Logger {
	log, err := logger.New(logger.DefaultConfig())
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newIssueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue",
		Short: "签发配置中的全部证书（单次运行）",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(opts)
		},
	}
}

func runIssue(opts *rootOptions) error {
	cfg, log, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	sigHandler := daemon.NewSignalHandler(log)
	sigHandler.Start()
	defer sigHandler.Stop()

	return core.NewManager(cfg, log).Run(sigHandler.Context())
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "注册 ACME 账号并保存到 account_file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 注册时还没有证书请求，只读取不校验
			cfg, err := config.Read(opts.configPath)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if email == "" {
				email = cfg.ACME.Email
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			defer log.Sync()

			user, err := acme.Register(context.Background(), cfg.ACME.DirectoryURL, email, cfg.ACME.AccountFile, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "账号已注册: %s\n账号文件: %s\n", user.Registration.URI, cfg.ACME.AccountFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "联系邮箱，默认使用配置中的 acme.email")
	return cmd
}

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "前台守护进程模式（调试用）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			sigHandler := daemon.NewSignalHandler(log)
			sigHandler.Start()

			log.Info("启动前台守护进程模式", zap.Int("check_interval_hours", cfg.CheckInterval))
			runLoop(sigHandler.Context(), cfg, log)
			return nil
		},
	}
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "启动守护进程（后台运行）",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := daemon.NewDaemon(opts.configPath, nil)
			// 子进程进入定时签发循环
			if daemon.IsDaemonized() {
				return runBackground(opts.configPath, d)
			}

			pid, err := d.Spawn()
			if err != nil {
				return fmt.Errorf("启动失败: %w", err)
			}
			printStarted(cmd.OutOrStdout(), d, pid)
			return nil
		},
	}
}

// runBackground 后台子进程的主逻辑
func runBackground(configPath string, d *daemon.Daemon) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	sigHandler := daemon.NewSignalHandler(log)
	sigHandler.Start()

	return d.Run(sigHandler.Context(), func(ctx context.Context) error {
		log.Info("守护进程已启动", zap.Int("pid", os.Getpid()), zap.Int("check_interval_hours", cfg.CheckInterval))
		runLoop(ctx, cfg, log)
		return nil
	})
}

func printStarted(w io.Writer, d *daemon.Daemon, pid int) {
	fmt.Fprintf(w, "守护进程已启动，PID: %d\n", pid)
	fmt.Fprintf(w, "日志文件: %s\n", d.LogFile)
	fmt.Fprintf(w, "PID文件: %s\n", d.PidFile)
}

func runLoop(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	manager := core.NewManager(cfg, log)
	daemon.Loop(ctx, time.Duration(cfg.CheckInterval)*time.Hour, log, manager.Run)
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "停止守护进程",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := daemon.NewDaemon(opts.configPath, consoleLogger())
			forced, err := d.Stop(cmd.Context())
			if err != nil {
				return fmt.Errorf("停止失败: %w", err)
			}
			if forced {
				fmt.Fprintln(cmd.OutOrStdout(), "守护进程已强制停止")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "守护进程已停止")
			}
			return nil
		},
	}
}

func newRestartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "重启守护进程",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := daemon.NewDaemon(opts.configPath, consoleLogger())
			pid, err := d.Restart(cmd.Context())
			if err != nil {
				return fmt.Errorf("重启失败: %w", err)
			}
			printStarted(cmd.OutOrStdout(), d, pid)
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看守护进程状态",
		Run: func(cmd *cobra.Command, args []string) {
			d := daemon.NewDaemon(opts.configPath, nil)
			out := cmd.OutOrStdout()
			st := d.Status()
			if !st.Running {
				fmt.Fprintln(out, "守护进程未运行")
				return
			}
			fmt.Fprintf(out, "守护进程运行中，PID: %d\n", st.PID)
			fmt.Fprintf(out, "PID文件: %s\n", d.PidFile)
			fmt.Fprintf(out, "日志文件: %s\n", d.LogFile)
		},
	}
}
