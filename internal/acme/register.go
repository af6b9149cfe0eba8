package acme

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
	"go.uber.org/zap"

	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
)

// Register 在 ACME 服务端注册新账号并保存到 accountFile
// accountFile 已存在时返回 ErrConfigExists，不会覆盖
func Register(ctx context.Context, directoryURL, email, accountFile string, log *zap.Logger) (*User, error) {
	log = logger.OrNop(log)
	if _, err := os.Stat(accountFile); err == nil {
		return nil, apperrors.Config("注册账号", fmt.Errorf("%w: %s", apperrors.ErrConfigExists, accountFile))
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("检查账号文件失败: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, err := newUser(email)
	if err != nil {
		return nil, err
	}

	redirectLegoLog(log)
	config := lego.NewConfig(user)
	config.CADirURL = directoryURL
	config.UserAgent = userAgent

	client, err := lego.NewClient(config)
	if err != nil {
		return nil, apperrors.Provider("创建ACME客户端", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, apperrors.Provider("注册ACME账号", err)
	}
	user.Registration = reg

	if err := user.Save(accountFile); err != nil {
		return nil, err
	}

	log.Info("ACME 账号注册成功",
		zap.String("account", reg.URI),
		zap.String("email", email),
		zap.String("directory", directoryURL))
	return user, nil
}
