package chain

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
)

// BalanceState 两名玩家的代币余额快照
type BalanceState struct {
	Player1 float64 `json:"player1"`
	Player2 float64 `json:"player2"`
}

// BalanceTracker 余额跟踪器，保存最近一次链上查询结果
type BalanceTracker struct {
	mu    sync.RWMutex
	state BalanceState
}

// NewBalanceTracker 创建余额跟踪器
func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{}
}

// Get 获取当前余额快照
func (t *BalanceTracker) Get() BalanceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Set 更新余额快照
func (t *BalanceTracker) Set(state BalanceState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

// DeriveTokenAccount 推导钱包在指定代币下的关联代币账户地址
func DeriveTokenAccount(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, apperrors.Wrap(err, apperrors.ErrPubkeyDecode, "推导关联代币账户失败")
	}
	return account, nil
}
