package chain

import (
	"errors"
	"os"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
)

// LoadKeypair 从Solana CLI格式的JSON密钥文件加载密钥对
// 文件内容为64字节私钥的JSON数组
func LoadKeypair(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrapf(err, apperrors.ErrKeypairNotFound, "密钥文件不存在: %s", path)
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrKeypairParse, "解析密钥文件失败: %s", path)
	}
	return key, nil
}
