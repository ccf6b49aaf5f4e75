package chain

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
)

// writeTestKeypair 生成密钥对并写入Solana CLI格式的JSON文件
func writeTestKeypair(t *testing.T) (string, solana.PrivateKey) {
	t.Helper()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keypair.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path, key
}

// TestLoadKeypair 测试密钥文件加载
func TestLoadKeypair(t *testing.T) {
	t.Run("正常加载", func(t *testing.T) {
		path, key := writeTestKeypair(t)

		loaded, err := LoadKeypair(path)
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey(), loaded.PublicKey())
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := LoadKeypair(filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrKeypairNotFound, apperrors.GetCode(err))
	})

	t.Run("文件格式错误", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

		_, err := LoadKeypair(path)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrKeypairParse, apperrors.GetCode(err))
	})
}
