package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// Player 玩家编号
type Player int

const (
	// Player1 玩家1
	Player1 Player = 1
	// Player2 玩家2
	Player2 Player = 2
)

// Label 返回显示用的玩家名称
func (p Player) Label() string {
	return fmt.Sprintf("Player %d", p)
}

// Outcome 一次铸造的最终结果
type Outcome string

const (
	// OutcomeSuccess 确认成功
	OutcomeSuccess Outcome = "success"
	// OutcomeNotConfirmed 已发送但未在时限内确认
	OutcomeNotConfirmed Outcome = "not_confirmed"
	// OutcomeFailed 流程失败
	OutcomeFailed Outcome = "failed"
)

// 状态屏错误信息最多保留20个字符
const errorDisplayLimit = 20

// MintResult 一次铸造的完整结果
type MintResult struct {
	OrderNo         string
	Player          Player
	Wallet          solana.PublicKey
	TokenAccount    solana.PublicKey
	CreatedAccount  bool
	CreateSignature solana.Signature
	MintSignature   solana.Signature
	Outcome         Outcome
	Err             error
	Duration        time.Duration
}

// StatusSink 接收铸造过程中的状态文本与余额更新
type StatusSink interface {
	// PushStatus 推送状态文本，空串表示清除
	PushStatus(status string)
	// PushBalances 推送两名玩家的余额
	PushBalances(player1, player2 float64)
}

// Minter 代币铸造器，执行完整的铸造流程并驱动状态屏
type Minter struct {
	config   *config.ChainConfig
	display  *config.DisplayConfig
	client   LedgerClient
	sink     StatusSink
	balances *BalanceTracker
	mint     solana.PublicKey
	player1  solana.PublicKey
	player2  solana.PublicKey
	logger   *zap.Logger
}

// NewMinter 创建铸造器
func NewMinter(cfg *config.ChainConfig, displayCfg *config.DisplayConfig, client LedgerClient, sink StatusSink, balances *BalanceTracker) (*Minter, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.Mint)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrPubkeyDecode, "代币地址无效: %s", cfg.Mint)
	}
	player1, err := solana.PublicKeyFromBase58(cfg.Player1Wallet)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrPubkeyDecode, "玩家1钱包地址无效: %s", cfg.Player1Wallet)
	}
	player2, err := solana.PublicKeyFromBase58(cfg.Player2Wallet)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrPubkeyDecode, "玩家2钱包地址无效: %s", cfg.Player2Wallet)
	}

	return &Minter{
		config:   cfg,
		display:  displayCfg,
		client:   client,
		sink:     sink,
		balances: balances,
		mint:     mint,
		player1:  player1,
		player2:  player2,
		logger:   logger.GetModuleLogger("mint"),
	}, nil
}

// WalletFor 返回玩家的目标钱包地址
func (m *Minter) WalletFor(player Player) solana.PublicKey {
	if player == Player2 {
		return m.player2
	}
	return m.player1
}

// MintTo 为指定玩家铸造一枚代币
// 流程中的每一步都会推送状态文本，最终状态展示后清屏
func (m *Minter) MintTo(ctx context.Context, player Player) *MintResult {
	start := time.Now()
	label := player.Label()

	result := &MintResult{
		OrderNo: uuid.New().String(),
		Player:  player,
		Wallet:  m.WalletFor(player),
	}

	m.logger.Info("开始铸造代币",
		zap.String("order_no", result.OrderNo),
		zap.String("player", label),
		zap.String("wallet", result.Wallet.String()))
	m.sink.PushStatus(fmt.Sprintf("Minting to %s...", label))

	// 每次铸造时加载密钥，运行中补放密钥文件即可生效
	keypair, err := LoadKeypair(m.config.KeypairPath)
	if err != nil {
		m.logger.Error("加载密钥失败", zap.Error(err))
		m.sink.PushStatus("Error: No keypair")
		m.pause(ctx, m.display.ErrorPause)
		m.sink.PushStatus("")

		result.Outcome = OutcomeFailed
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	outcome, err := m.runMint(ctx, result, keypair, label)
	result.Outcome = outcome
	result.Err = err
	result.Duration = time.Since(start)

	switch outcome {
	case OutcomeSuccess:
		m.logger.Info("铸造成功",
			zap.String("order_no", result.OrderNo),
			zap.String("signature", result.MintSignature.String()),
			zap.Duration("duration", result.Duration))
		m.sink.PushStatus("Success!!!!!!!!!!!!!!!!")
		m.pause(ctx, m.display.SuccessPause)
		m.RefreshBalances(ctx)
		m.pause(ctx, m.display.ClearPause)
		m.sink.PushStatus("")

	case OutcomeNotConfirmed:
		m.logger.Warn("铸造交易未确认",
			zap.String("order_no", result.OrderNo),
			zap.String("signature", result.MintSignature.String()))
		m.sink.PushStatus("⚠️  Not confirmed")
		m.pause(ctx, m.display.NotConfirmedPause)
		m.sink.PushStatus("")

	case OutcomeFailed:
		m.logger.Error("铸造失败",
			zap.String("order_no", result.OrderNo),
			zap.String("player", label),
			zap.Error(err))
		m.sink.PushStatus("❌ Error: " + truncateMessage(err, errorDisplayLimit))
		m.pause(ctx, m.display.ErrorPause)
		m.sink.PushStatus("")
	}

	return result
}

// runMint 执行查账户、建账户、构造交易、发送、确认各阶段
func (m *Minter) runMint(ctx context.Context, result *MintResult, keypair solana.PrivateKey, label string) (Outcome, error) {
	tokenAccount, err := DeriveTokenAccount(result.Wallet, m.mint)
	if err != nil {
		return OutcomeFailed, err
	}
	result.TokenAccount = tokenAccount

	m.sink.PushStatus(fmt.Sprintf("Checking %s account...", label))
	exists, err := m.client.AccountExists(ctx, tokenAccount)
	if err != nil {
		// 查询失败按账户不存在处理，创建已有账户的交易会失败并走错误分支
		m.logger.Warn("查询代币账户失败，按不存在处理",
			zap.String("token_account", tokenAccount.String()),
			zap.Error(err))
		exists = false
	}

	if !exists {
		m.logger.Info("代币账户不存在，开始创建",
			zap.String("player", label),
			zap.String("token_account", tokenAccount.String()))
		m.sink.PushStatus(fmt.Sprintf("Creating %s account...", label))

		createSig, err := m.createTokenAccount(ctx, keypair, result.Wallet)
		if err != nil {
			return OutcomeFailed, err
		}
		result.CreatedAccount = true
		result.CreateSignature = createSig
	}

	m.sink.PushStatus("Creating transaction...")
	mintIx, err := token.NewMintToInstruction(
		m.config.MintAmount,
		m.mint,
		tokenAccount,
		keypair.PublicKey(),
		nil,
	).ValidateAndBuild()
	if err != nil {
		return OutcomeFailed, apperrors.Wrap(err, apperrors.ErrTxBuild, "构建铸造指令失败")
	}

	m.sink.PushStatus("Getting blockhash...")
	blockhash, err := m.client.LatestBlockhash(ctx)
	if err != nil {
		return OutcomeFailed, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{mintIx},
		blockhash,
		solana.TransactionPayer(keypair.PublicKey()),
	)
	if err != nil {
		return OutcomeFailed, apperrors.Wrap(err, apperrors.ErrTxBuild, "构建铸造交易失败")
	}
	if err := signTransaction(tx, keypair); err != nil {
		return OutcomeFailed, err
	}

	m.sink.PushStatus("Sending transaction...")
	sig, err := m.client.SendTransaction(ctx, tx)
	if err != nil {
		return OutcomeFailed, err
	}
	result.MintSignature = sig
	m.logger.Info("铸造交易已发送",
		zap.String("order_no", result.OrderNo),
		zap.String("signature", sig.String()))

	m.sink.PushStatus("Confirming on-chain...")
	confirmed, err := m.client.ConfirmTransaction(ctx, sig, rpc.ConfirmationStatusConfirmed)
	if err != nil {
		// 链上执行失败是错误终态，只有超时才算未确认
		return OutcomeFailed, err
	}
	if !confirmed {
		return OutcomeNotConfirmed, nil
	}

	return OutcomeSuccess, nil
}

// createTokenAccount 创建关联代币账户
// 创建交易的确认超时只记录警告，铸造流程继续；链上执行失败则中止
func (m *Minter) createTokenAccount(ctx context.Context, payer solana.PrivateKey, owner solana.PublicKey) (solana.Signature, error) {
	blockhash, err := m.client.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	ix, err := associatedtokenaccount.NewCreateInstruction(
		payer.PublicKey(),
		owner,
		m.mint,
	).ValidateAndBuild()
	if err != nil {
		return solana.Signature{}, apperrors.Wrap(err, apperrors.ErrTxBuild, "构建创建账户指令失败")
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, apperrors.Wrap(err, apperrors.ErrTxBuild, "构建创建账户交易失败")
	}
	if err := signTransaction(tx, payer); err != nil {
		return solana.Signature{}, err
	}

	sig, err := m.client.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	m.logger.Info("代币账户创建交易已发送", zap.String("signature", sig.String()))

	confirmed, err := m.client.ConfirmTransaction(ctx, sig, rpc.ConfirmationStatusFinalized)
	if err != nil {
		return solana.Signature{}, err
	}
	if !confirmed {
		m.logger.Warn("代币账户创建未在时限内确认，继续铸造",
			zap.String("signature", sig.String()))
	}

	return sig, nil
}

// RefreshBalances 从链上刷新两名玩家的余额并推送显示
// 单个钱包查询失败按0处理，刷新结果总是入队
func (m *Minter) RefreshBalances(ctx context.Context) BalanceState {
	p1 := m.walletBalance(ctx, m.player1, Player1.Label())
	p2 := m.walletBalance(ctx, m.player2, Player2.Label())

	state := BalanceState{Player1: p1, Player2: p2}
	m.balances.Set(state)
	m.sink.PushBalances(p1, p2)

	m.logger.Info("代币余额已更新",
		zap.Float64("player1", p1),
		zap.Float64("player2", p2))

	return state
}

// walletBalance 查询单个钱包的代币余额，任何失败返回0
func (m *Minter) walletBalance(ctx context.Context, wallet solana.PublicKey, label string) float64 {
	tokenAccount, err := DeriveTokenAccount(wallet, m.mint)
	if err != nil {
		m.logger.Warn("推导代币账户失败", zap.String("player", label), zap.Error(err))
		return 0
	}

	exists, err := m.client.AccountExists(ctx, tokenAccount)
	if err != nil {
		m.logger.Warn("查询代币账户失败", zap.String("player", label), zap.Error(err))
		return 0
	}
	if !exists {
		m.logger.Debug("代币账户尚不存在", zap.String("player", label))
		return 0
	}

	balance, err := m.client.TokenBalance(ctx, tokenAccount)
	if err != nil {
		m.logger.Warn("查询代币余额失败", zap.String("player", label), zap.Error(err))
		return 0
	}

	return balance
}

// signTransaction 用密钥对签名交易
func signTransaction(tx *solana.Transaction, keypair solana.PrivateKey) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(keypair.PublicKey()) {
			return &keypair
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTxBuild, "签名交易失败")
	}
	return nil
}

// truncateMessage 按字符截断错误信息
func truncateMessage(err error, limit int) string {
	if err == nil {
		return ""
	}
	runes := []rune(err.Error())
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}

// pause 展示暂停，上层取消时立即返回
func (m *Minter) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
