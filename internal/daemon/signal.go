package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"acme-dns-manager/internal/logger"
)

// SignalHandler 信号处理器
type SignalHandler struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// NewSignalHandler 创建信号处理器
func NewSignalHandler(log *zap.Logger) *SignalHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &SignalHandler{ctx: ctx, cancel: cancel, log: logger.OrNop(log)}
}

// Context 返回收到信号后取消的 context
func (h *SignalHandler) Context() context.Context {
	return h.ctx
}

// Start 开始监听 SIGINT 和 SIGTERM
func (h *SignalHandler) Start() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			h.log.Info("收到信号，正在优雅关闭", zap.Stringer("signal", sig))
			h.cancel()
		case <-h.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

// Stop 取消 context 并停止监听
func (h *SignalHandler) Stop() {
	h.cancel()
}

// Loop 立即执行一次 run，之后每隔 interval 执行一次，直到 ctx 取消
// run 返回的错误只记录日志，不会中断循环；interval 不为正时只执行一次
func Loop(ctx context.Context, interval time.Duration, log *zap.Logger, run func(ctx context.Context) error) {
	log = logger.OrNop(log)

	if err := run(ctx); err != nil {
		log.Error("运行出错", zap.Error(err))
	}

	if interval <= 0 {
		log.Error("检查间隔无效，不再定时执行", zap.Duration("interval", interval))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("守护进程正在退出")
			return
		case <-ticker.C:
			log.Info("开始定时检查")
			if err := run(ctx); err != nil {
				log.Error("运行出错", zap.Error(err))
			}
		}
	}
}
