package core

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"acme-dns-manager/internal/logger"
)

// Executor 后置命令执行器
type Executor struct {
	log *zap.Logger
}

// NewExecutor 创建执行器
func NewExecutor(log *zap.Logger) *Executor {
	return &Executor{log: logger.OrNop(log)}
}

// RunPostCommand 替换 ${VAR} 变量后通过 sh -c 执行命令
func (e *Executor) RunPostCommand(ctx context.Context, command string, vars map[string]string) error {
	if command == "" {
		return nil
	}

	for key, value := range vars {
		command = strings.ReplaceAll(command, "${"+key+"}", value)
	}

	e.log.Info("执行后置命令", zap.String("command", command))

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for key, value := range vars {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("执行命令失败: %w", err)
	}

	e.log.Info("后置命令执行成功")
	return nil
}

// BuildVars 构建变量映射
func (e *Executor) BuildVars(domain, certFile, chainFile, csrFile string) map[string]string {
	return map[string]string{
		"DOMAIN":     domain,
		"CERT_FILE":  certFile,
		"CHAIN_FILE": chainFile,
		"CSR_FILE":   csrFile,
	}
}
