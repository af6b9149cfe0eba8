package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-acme/lego/v4/registration"
)

// User ACME 账号，私钥保存在账号文件旁的 .key 文件
type User struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (u *User) GetEmail() string                        { return u.Email }
func (u *User) GetRegistration() *registration.Resource { return u.Registration }
func (u *User) GetPrivateKey() crypto.PrivateKey        { return u.key }

// KeyFile 返回账号私钥文件路径
func KeyFile(accountFile string) string {
	return accountFile + ".key"
}

// LoadUser 读取已注册的账号
func LoadUser(accountFile string) (*User, error) {
	data, err := os.ReadFile(accountFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("账号文件 %s 不存在，请先执行 register", accountFile)
		}
		return nil, fmt.Errorf("读取账号文件失败: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("解析账号数据失败: %w", err)
	}
	if user.Registration == nil || user.Registration.URI == "" {
		return nil, fmt.Errorf("账号文件 %s 缺少注册信息", accountFile)
	}

	keyData, err := os.ReadFile(KeyFile(accountFile))
	if err != nil {
		return nil, fmt.Errorf("读取账号私钥失败: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("私钥格式错误")
	}
	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	user.key = privateKey
	return &user, nil
}

func newUser(email string) (*User, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("生成账号私钥失败: %w", err)
	}
	return &User{Email: email, key: privateKey}, nil
}

// Save 保存账号信息和私钥，仅所有者可读写
func (u *User) Save(accountFile string) error {
	if err := os.MkdirAll(filepath.Dir(accountFile), 0700); err != nil {
		return fmt.Errorf("创建账号目录失败: %w", err)
	}

	ecKey, ok := u.key.(*ecdsa.PrivateKey)
	if !ok {
		return errors.New("不支持的密钥类型")
	}
	keyBytes, err := x509.MarshalECPrivateKey(ecKey)
	if err != nil {
		return fmt.Errorf("编码私钥失败: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	if err := os.WriteFile(KeyFile(accountFile), keyPEM, 0600); err != nil {
		return fmt.Errorf("保存账号私钥失败: %w", err)
	}

	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("编码账号数据失败: %w", err)
	}
	if err := os.WriteFile(accountFile, data, 0600); err != nil {
		return fmt.Errorf("保存账号文件失败: %w", err)
	}
	return nil
}
