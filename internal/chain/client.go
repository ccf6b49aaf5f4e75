package chain

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// 代币精度为9位小数
const tokenBaseUnits = 1e9

// LedgerClient 链上读写接口
type LedgerClient interface {
	// AccountExists 检查账户是否存在
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	// TokenBalance 查询代币账户余额（已按精度折算）
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (float64, error)
	// LatestBlockhash 获取最新区块哈希
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// SendTransaction 发送已签名交易
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// ConfirmTransaction 轮询等待交易达到指定确认级别
	// 超时返回(false, nil)，链上执行失败返回(false, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature, target rpc.ConfirmationStatusType) (bool, error)
}

// RPCClient 基于JSON-RPC的链上客户端
type RPCClient struct {
	rpc    *rpc.Client
	config *config.ChainConfig
	logger *zap.Logger
}

// NewRPCClient 创建RPC客户端
func NewRPCClient(cfg *config.ChainConfig) *RPCClient {
	return &RPCClient{
		rpc:    rpc.New(cfg.RPCURL),
		config: cfg,
		logger: logger.GetModuleLogger("chain"),
	}
}

// AccountExists 检查账户是否存在
func (c *RPCClient) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, apperrors.Wrapf(err, apperrors.ErrAccountQuery, "查询账户 %s 失败", account.String())
	}
	return true, nil
}

// TokenBalance 查询代币账户余额
// 与确认轮询一致使用confirmed级别，铸造成功后的刷新立即可见
func (c *RPCClient) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (float64, error) {
	resp, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrBalanceQuery, "查询代币余额 %s 失败", tokenAccount.String())
	}
	return parseTokenBalance(resp)
}

// parseTokenBalance 把RPC返回的原始数量折算为代币数量
// 原始数量是最小单位的十进制字符串，按9位精度折算
func parseTokenBalance(resp *rpc.GetTokenAccountBalanceResult) (float64, error) {
	if resp == nil || resp.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrBalanceQuery, "解析余额失败")
	}

	return float64(amount) / tokenBaseUnits, nil
}

// LatestBlockhash 获取最新区块哈希
func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	resp, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, apperrors.Wrap(err, apperrors.ErrBlockhashFetch)
	}
	return resp.Value.Blockhash, nil
}

// SendTransaction 发送已签名交易
func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, apperrors.Wrap(err, apperrors.ErrTxSend)
	}
	return sig, nil
}

// ConfirmTransaction 轮询等待交易确认
func (c *RPCClient) ConfirmTransaction(ctx context.Context, sig solana.Signature, target rpc.ConfirmationStatusType) (bool, error) {
	return pollConfirmation(ctx, c.config.ConfirmPollInterval, c.config.ConfirmTimeout,
		func(ctx context.Context) (bool, error) {
			resp, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				// RPC瞬时错误，继续轮询
				c.logger.Debug("查询交易状态失败", zap.String("signature", sig.String()), zap.Error(err))
				return false, nil
			}
			if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
				return false, nil
			}

			status := resp.Value[0]
			if status.Err != nil {
				return false, apperrors.Newf(apperrors.ErrTxNotConfirmed, "交易链上执行失败: %v", status.Err)
			}

			return statusReached(status.ConfirmationStatus, target), nil
		})
}

// statusReached 判断确认级别是否达到目标
func statusReached(current, target rpc.ConfirmationStatusType) bool {
	return statusRank(current) >= statusRank(target)
}

func statusRank(status rpc.ConfirmationStatusType) int {
	switch status {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}

// pollConfirmation 按固定间隔轮询check直到确认、失败或超时
// check约定：(true, nil)已确认，(false, nil)继续等待，(false, err)终止失败
func pollConfirmation(ctx context.Context, interval, timeout time.Duration, check func(context.Context) (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		confirmed, err := check(ctx)
		if err != nil {
			return false, err
		}
		if confirmed {
			return true, nil
		}

		select {
		case <-ctx.Done():
			// 超时按未确认处理
			return false, nil
		case <-ticker.C:
		}
	}
}
