package awsdns

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	apperrors "acme-dns-manager/internal/errors"
)

// classifyError 将 AWS 接口错误归类
func classifyError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchHostedZone", "NotFoundException":
			return apperrors.Config(op, fmt.Errorf("%w: %s", apperrors.ErrNoDNSZone, apiErr.ErrorMessage()))
		case "AccessDenied", "AccessDeniedException", "UnauthenticatedException", "InvalidClientTokenId":
			return apperrors.Config(op, fmt.Errorf("AWS凭证无权限 (code: %s): %w", apiErr.ErrorCode(), err))
		default:
			return apperrors.Provider(op, fmt.Errorf("AWS接口错误 (code: %s): %w", apiErr.ErrorCode(), err))
		}
	}
	return apperrors.Provider(op, err)
}
