package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	t.Run("超时类别可识别", func(t *testing.T) {
		err := Timeout("等待 DNS 生效", ErrDNSUpdateTimeout)
		assert.True(t, IsTimeout(err))
		assert.False(t, IsConfig(err))
		assert.True(t, errors.Is(err, ErrDNSUpdateTimeout))
	})

	t.Run("多层包装后仍保留类别", func(t *testing.T) {
		err := fmt.Errorf("签发 www.example.com 失败: %w", Config("查找 DNS 区域", ErrNoDNSZone))
		assert.Equal(t, KindConfig, KindOf(err))
		assert.True(t, errors.Is(err, ErrNoDNSZone))
	})

	t.Run("普通错误没有类别", func(t *testing.T) {
		assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
		assert.False(t, IsTimeout(nil))
	})
}

func TestErrorMessage(t *testing.T) {
	err := Protocol("校验订单状态", ErrAcmeChallengeIncomplete)
	assert.Equal(t, "[protocol] 校验订单状态: acme challenges did not complete", err.Error())

	err = New(KindProvider, "", errors.New("throttled"))
	assert.Equal(t, "[provider] throttled", err.Error())
}
