package p2p

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

const (
	privateKeyFile = "private.key"
	publicKeyFile  = "public.key"
)

// LoadOrCreateIdentity 读取 dir 下的节点密钥，不存在则生成 Ed25519 密钥并落盘
func LoadOrCreateIdentity(dir string) (crypto.PrivKey, error) {
	privPath := filepath.Join(dir, privateKeyFile)
	data, err := os.ReadFile(privPath)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse node key %s: %w", privPath, err)
		}
		return priv, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read node key %s: %w", privPath, err)
	}

	priv, pub, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, fmt.Errorf("generate node key: %w", err)
	}
	privBytes, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal node key: %w", err)
	}
	pubBytes, err := crypto.MarshalPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal node public key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(privPath, privBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write node key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), pubBytes, 0o644); err != nil {
		return nil, fmt.Errorf("write node public key: %w", err)
	}
	return priv, nil
}
