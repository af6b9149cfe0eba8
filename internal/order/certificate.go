package order

import (
	"encoding/pem"
	"fmt"

	apperrors "acme-dns-manager/internal/errors"
)

// IssuedCertificate 签发结果，均为 PEM 编码
type IssuedCertificate struct {
	Leaf   []byte // 域名证书
	Issuer []byte // 签发者证书
}

// Chain 返回完整证书链
func (c *IssuedCertificate) Chain() []byte {
	chain := make([]byte, 0, len(c.Leaf)+len(c.Issuer))
	chain = append(chain, c.Leaf...)
	return append(chain, c.Issuer...)
}

// SplitBundle 将服务端返回的证书链拆分为域名证书和签发者证书
// 证书链必须正好包含两个 PEM 块
func SplitBundle(bundle []byte) (*IssuedCertificate, error) {
	var blocks []*pem.Block
	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}

	if len(blocks) != 2 {
		return nil, apperrors.Protocol("拆分证书链", fmt.Errorf("%w: 实际 %d 个", apperrors.ErrInvalidBundle, len(blocks)))
	}
	return &IssuedCertificate{
		Leaf:   pem.EncodeToMemory(blocks[0]),
		Issuer: pem.EncodeToMemory(blocks[1]),
	}, nil
}
