// Package daemon 后台运行、PID 文件管理和定时签发
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"acme-dns-manager/internal/logger"
)

const (
	// EnvDaemonized 标记进程是否已后台化
	EnvDaemonized = "ACME_DNS_MANAGER_DAEMONIZED"

	processName        = "acme-dns-manager"
	defaultStopTimeout = 3 * time.Second
	exitPollInterval   = 100 * time.Millisecond
)

var (
	ErrAlreadyRunning = errors.New("守护进程已在运行")
	ErrNotRunning     = errors.New("守护进程未运行")
)

// Status 守护进程状态
type Status struct {
	PID     int
	Running bool
}

// Daemon 管理后台子进程的 PID 文件、日志文件和启停
type Daemon struct {
	PidFile string
	LogFile string
	// Args 子进程的命令行参数
	Args []string

	stopTimeout time.Duration
	log         *zap.Logger
}

// NewDaemon 创建守护进程管理器，PID 和日志文件放在配置文件所在目录
// 子进程以 start --config <绝对路径> 重新执行，不依赖工作目录
func NewDaemon(configPath string, log *zap.Logger) *Daemon {
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	dir := filepath.Dir(configPath)

	return &Daemon{
		PidFile:     filepath.Join(dir, processName+".pid"),
		LogFile:     filepath.Join(dir, processName+".log"),
		Args:        []string{"start", "--config", configPath},
		stopTimeout: defaultStopTimeout,
		log:         logger.OrNop(log),
	}
}

// Status 读取 PID 文件并检查进程是否存活
func (d *Daemon) Status() Status {
	pid, err := readPid(d.PidFile)
	if err != nil {
		return Status{}
	}
	return Status{PID: pid, Running: alive(pid)}
}

// Spawn 在新会话中启动子进程，返回子进程 PID
func (d *Daemon) Spawn() (int, error) {
	if st := d.Status(); st.Running {
		return 0, fmt.Errorf("%w，PID: %d", ErrAlreadyRunning, st.PID)
	}

	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	logFile, err := os.OpenFile(d.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("无法打开日志文件 %s: %w", d.LogFile, err)
	}
	defer logFile.Close()

	cmd := d.command(executable)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("启动守护进程失败: %w", err)
	}

	// 子进程独立运行，这里只释放句柄
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	d.log.Info("守护进程已启动", zap.Int("pid", pid), zap.String("log_file", d.LogFile))
	return pid, nil
}

func (d *Daemon) command(executable string) *exec.Cmd {
	cmd := exec.Command(executable, d.Args...)
	cmd.Env = append(os.Environ(), EnvDaemonized+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// Run 在子进程中持有 PID 文件并执行 fn，fn 返回后删除 PID 文件
func (d *Daemon) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if st := d.Status(); st.Running && st.PID != os.Getpid() {
		return fmt.Errorf("%w，PID: %d", ErrAlreadyRunning, st.PID)
	}
	if err := os.WriteFile(d.PidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("写入PID文件失败: %w", err)
	}
	defer d.removePid()

	return fn(ctx)
}

// Stop 发送 SIGTERM，超时未退出则发送 SIGKILL
// 返回值 forced 表示是否强制终止
func (d *Daemon) Stop(ctx context.Context) (forced bool, err error) {
	st := d.Status()
	if !st.Running {
		return false, ErrNotRunning
	}

	process, err := os.FindProcess(st.PID)
	if err != nil {
		return false, fmt.Errorf("找不到进程 %d: %w", st.PID, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return false, fmt.Errorf("发送停止信号失败: %w", err)
	}
	d.log.Info("已发送停止信号", zap.Int("pid", st.PID))

	if d.waitExit(ctx, st.PID) {
		return false, nil
	}

	d.log.Warn("进程未响应，强制终止", zap.Int("pid", st.PID))
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return false, fmt.Errorf("强制终止失败: %w", err)
	}
	d.removePid()
	return true, nil
}

// waitExit 等待进程退出，超时或 ctx 取消时返回 false
func (d *Daemon) waitExit(ctx context.Context, pid int) bool {
	deadline := time.Now().Add(d.stopTimeout)
	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if !alive(pid) {
			return true
		}
	}
	return false
}

// Restart 停止正在运行的守护进程后重新启动
func (d *Daemon) Restart(ctx context.Context) (int, error) {
	if d.Status().Running {
		if _, err := d.Stop(ctx); err != nil {
			return 0, fmt.Errorf("停止守护进程失败: %w", err)
		}
	}
	return d.Spawn()
}

func (d *Daemon) removePid() {
	if err := os.Remove(d.PidFile); err != nil && !os.IsNotExist(err) {
		d.log.Warn("删除PID文件失败", zap.Error(err))
	}
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("PID文件内容无效: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("PID文件内容无效: %d", pid)
	}
	return pid, nil
}

// alive 发送信号 0 检查进程是否存在
func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// IsDaemonized 检查当前进程是否是守护进程
func IsDaemonized() bool {
	return os.Getenv(EnvDaemonized) == "1"
}
