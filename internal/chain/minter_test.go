package chain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
)

// fakeLedger 模拟链上客户端
type fakeLedger struct {
	mu             sync.Mutex
	existing       map[solana.PublicKey]bool
	balances       map[solana.PublicKey]float64
	existsErr      error
	balanceErr     error
	blockhashErr   error
	sendErr        error
	confirmOK      bool
	confirmErr     error
	sentCount      int
	confirmTargets []rpc.ConfirmationStatusType
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		existing:  make(map[solana.PublicKey]bool),
		balances:  make(map[solana.PublicKey]float64),
		confirmOK: true,
	}
}

func (f *fakeLedger) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[account], nil
}

func (f *fakeLedger) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balances[tokenAccount], nil
}

func (f *fakeLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return solana.Hash{}, f.blockhashErr
}

func (f *fakeLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sentCount++
	var sig solana.Signature
	sig[0] = byte(f.sentCount)
	return sig, nil
}

func (f *fakeLedger) ConfirmTransaction(ctx context.Context, sig solana.Signature, target rpc.ConfirmationStatusType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmTargets = append(f.confirmTargets, target)
	return f.confirmOK, f.confirmErr
}

// recordingSink 记录状态与余额推送顺序
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) PushStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "status:"+status)
}

func (s *recordingSink) PushBalances(player1, player2 float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, fmt.Sprintf("balances:%.0f,%.0f", player1, player2))
}

func (s *recordingSink) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func newTestMinter(t *testing.T, ledger *fakeLedger, keypairPath string) (*Minter, *recordingSink, *BalanceTracker) {
	t.Helper()

	chainCfg := &config.ChainConfig{
		RPCURL:              "https://api.devnet.solana.com",
		KeypairPath:         keypairPath,
		Mint:                "gyriWKfyFGRLw1a6JuueMZ6ER84WewmicFUa6B3GZJy",
		Player1Wallet:       "41QHsedtyfNyj6Q2iCDFoGspZ7rqUKu735YNoFLTvw9i",
		Player2Wallet:       "GsfNSuZFrT2r4xzSndnCSs9tTXwt47etPqU8yFVnDcXd",
		MintAmount:          1000000000,
		ConfirmTimeout:      time.Second,
		ConfirmPollInterval: time.Millisecond,
	}
	// 测试中所有展示暂停为零
	displayCfg := &config.DisplayConfig{}

	sink := &recordingSink{}
	tracker := NewBalanceTracker()

	minter, err := NewMinter(chainCfg, displayCfg, ledger, sink, tracker)
	require.NoError(t, err)

	return minter, sink, tracker
}

// TestNewMinterInvalidAddress 地址解析失败时拒绝创建
func TestNewMinterInvalidAddress(t *testing.T) {
	cfg := &config.ChainConfig{
		Mint:          "not-a-valid-address",
		Player1Wallet: "41QHsedtyfNyj6Q2iCDFoGspZ7rqUKu735YNoFLTvw9i",
		Player2Wallet: "GsfNSuZFrT2r4xzSndnCSs9tTXwt47etPqU8yFVnDcXd",
	}

	_, err := NewMinter(cfg, &config.DisplayConfig{}, newFakeLedger(), &recordingSink{}, NewBalanceTracker())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrPubkeyDecode, apperrors.GetCode(err))
}

// TestMintToSuccess 账户已存在时的完整成功流程与状态顺序
func TestMintToSuccess(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	minter, sink, tracker := newTestMinter(t, ledger, path)

	ata, err := DeriveTokenAccount(minter.player1, minter.mint)
	require.NoError(t, err)
	ledger.existing[ata] = true
	ledger.balances[ata] = 2

	result := minter.MintTo(context.Background(), Player1)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.NoError(t, result.Err)
	assert.False(t, result.CreatedAccount)
	assert.Equal(t, ata, result.TokenAccount)
	assert.NotEqual(t, solana.Signature{}, result.MintSignature)

	_, err = uuid.Parse(result.OrderNo)
	assert.NoError(t, err, "订单号应为UUID")

	expected := []string{
		"status:Minting to Player 1...",
		"status:Checking Player 1 account...",
		"status:Creating transaction...",
		"status:Getting blockhash...",
		"status:Sending transaction...",
		"status:Confirming on-chain...",
		"status:Success!!!!!!!!!!!!!!!!",
		"balances:2,0",
		"status:",
	}
	assert.Equal(t, expected, sink.list())

	// 铸造确认使用confirmed级别
	assert.Equal(t, []rpc.ConfirmationStatusType{rpc.ConfirmationStatusConfirmed}, ledger.confirmTargets)
	assert.Equal(t, BalanceState{Player1: 2, Player2: 0}, tracker.Get())
}

// TestMintToCreatesAccount 账户不存在时先创建再铸造
func TestMintToCreatesAccount(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	minter, sink, _ := newTestMinter(t, ledger, path)

	result := minter.MintTo(context.Background(), Player2)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.True(t, result.CreatedAccount)
	assert.NotEqual(t, solana.Signature{}, result.CreateSignature)
	assert.NotEqual(t, solana.Signature{}, result.MintSignature)
	assert.NotEqual(t, result.CreateSignature, result.MintSignature)
	assert.Equal(t, 2, ledger.sentCount, "创建账户和铸造各发送一笔交易")

	// 创建账户确认使用finalized级别，铸造使用confirmed级别
	assert.Equal(t, []rpc.ConfirmationStatusType{
		rpc.ConfirmationStatusFinalized,
		rpc.ConfirmationStatusConfirmed,
	}, ledger.confirmTargets)

	events := sink.list()
	assert.Contains(t, events, "status:Creating Player 2 account...")

	// 创建状态出现在检查之后、构造交易之前
	checkIdx := indexOf(events, "status:Checking Player 2 account...")
	createIdx := indexOf(events, "status:Creating Player 2 account...")
	txIdx := indexOf(events, "status:Creating transaction...")
	require.True(t, checkIdx >= 0 && createIdx >= 0 && txIdx >= 0)
	assert.Less(t, checkIdx, createIdx)
	assert.Less(t, createIdx, txIdx)
}

// TestMintToDoesNotRecreateAccount 每次铸造重新检查账户，已存在时不再创建
func TestMintToDoesNotRecreateAccount(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	minter, _, _ := newTestMinter(t, ledger, path)

	first := minter.MintTo(context.Background(), Player2)
	require.Equal(t, OutcomeSuccess, first.Outcome)
	require.True(t, first.CreatedAccount)
	require.Equal(t, 2, ledger.sentCount)

	// 链上账户已建立
	ledger.mu.Lock()
	ledger.existing[first.TokenAccount] = true
	ledger.mu.Unlock()

	second := minter.MintTo(context.Background(), Player2)
	assert.Equal(t, OutcomeSuccess, second.Outcome)
	assert.False(t, second.CreatedAccount)
	assert.Equal(t, solana.Signature{}, second.CreateSignature)
	assert.Equal(t, 3, ledger.sentCount, "两次铸造只应有一笔创建交易")
}

// TestMintToCreateConfirmTolerated 创建账户确认失败仅告警，铸造继续
func TestMintToCreateConfirmTolerated(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	ledger.confirmOK = false
	minter, sink, _ := newTestMinter(t, ledger, path)

	result := minter.MintTo(context.Background(), Player1)

	// 创建确认失败被容忍，铸造确认失败进入未确认分支
	assert.Equal(t, OutcomeNotConfirmed, result.Outcome)
	assert.True(t, result.CreatedAccount)
	assert.Equal(t, 2, ledger.sentCount)

	events := sink.list()
	assert.Equal(t, "status:⚠️  Not confirmed", events[len(events)-2])
	assert.Equal(t, "status:", events[len(events)-1])
}

// TestMintToNoKeypair 密钥文件缺失时短路返回
func TestMintToNoKeypair(t *testing.T) {
	ledger := newFakeLedger()
	minter, sink, _ := newTestMinter(t, ledger, filepath.Join(t.TempDir(), "missing.json"))

	result := minter.MintTo(context.Background(), Player1)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, apperrors.ErrKeypairNotFound, apperrors.GetCode(result.Err))
	assert.Equal(t, 0, ledger.sentCount, "无密钥时不应发送任何交易")

	expected := []string{
		"status:Minting to Player 1...",
		"status:Error: No keypair",
		"status:",
	}
	assert.Equal(t, expected, sink.list())
}

// TestMintToSendFailure 发送失败走错误分支，信息截断后清屏
func TestMintToSendFailure(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	ledger.sendErr = errors.New("insufficient funds for rent exemption")
	minter, sink, _ := newTestMinter(t, ledger, path)

	ata, err := DeriveTokenAccount(minter.player1, minter.mint)
	require.NoError(t, err)
	ledger.existing[ata] = true

	result := minter.MintTo(context.Background(), Player1)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, apperrors.ErrTxSend, apperrors.GetCode(result.Err))

	events := sink.list()
	require.GreaterOrEqual(t, len(events), 2)

	errEvent := events[len(events)-2]
	assert.True(t, strings.HasPrefix(errEvent, "status:❌ Error: "), "错误状态格式: %s", errEvent)
	detail := strings.TrimPrefix(errEvent, "status:❌ Error: ")
	assert.LessOrEqual(t, utf8.RuneCountInString(detail), errorDisplayLimit)

	assert.Equal(t, "status:", events[len(events)-1], "错误展示后应清屏")
}

// TestMintToNotConfirmed 确认超时走未确认分支
func TestMintToNotConfirmed(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	ledger.confirmOK = false
	minter, sink, _ := newTestMinter(t, ledger, path)

	ata, err := DeriveTokenAccount(minter.player2, minter.mint)
	require.NoError(t, err)
	ledger.existing[ata] = true

	result := minter.MintTo(context.Background(), Player2)

	assert.Equal(t, OutcomeNotConfirmed, result.Outcome)
	assert.NotEqual(t, solana.Signature{}, result.MintSignature)

	events := sink.list()
	assert.Equal(t, "status:⚠️  Not confirmed", events[len(events)-2])
	assert.Equal(t, "status:", events[len(events)-1])

	// 未确认不触发余额刷新
	for _, ev := range events {
		assert.False(t, strings.HasPrefix(ev, "balances:"))
	}
}

// TestMintToConfirmError 交易链上执行失败走错误终态而非未确认
func TestMintToConfirmError(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	ledger.confirmErr = apperrors.Newf(apperrors.ErrTxNotConfirmed, "交易链上执行失败: InstructionError")
	minter, sink, _ := newTestMinter(t, ledger, path)

	ata, err := DeriveTokenAccount(minter.player1, minter.mint)
	require.NoError(t, err)
	ledger.existing[ata] = true

	result := minter.MintTo(context.Background(), Player1)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, apperrors.ErrTxNotConfirmed, apperrors.GetCode(result.Err))
	assert.NotEqual(t, solana.Signature{}, result.MintSignature)

	events := sink.list()
	assert.True(t, strings.HasPrefix(events[len(events)-2], "status:❌ Error: "), "执行失败应展示错误终态: %s", events[len(events)-2])
	assert.Equal(t, "status:", events[len(events)-1])
	assert.NotContains(t, events, "status:⚠️  Not confirmed")
}

// TestMintToCreateConfirmError 创建账户交易链上失败时中止铸造
func TestMintToCreateConfirmError(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	ledger.confirmErr = apperrors.Newf(apperrors.ErrTxNotConfirmed, "交易链上执行失败: InstructionError")
	minter, sink, _ := newTestMinter(t, ledger, path)

	result := minter.MintTo(context.Background(), Player2)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.False(t, result.CreatedAccount)
	assert.Equal(t, 1, ledger.sentCount, "创建失败后不应再发送铸造交易")
	assert.Equal(t, []rpc.ConfirmationStatusType{rpc.ConfirmationStatusFinalized}, ledger.confirmTargets)

	events := sink.list()
	assert.True(t, strings.HasPrefix(events[len(events)-2], "status:❌ Error: "))
	assert.Equal(t, "status:", events[len(events)-1])
}

// TestMintToPauseCanceled 上层取消时展示暂停立即返回
func TestMintToPauseCanceled(t *testing.T) {
	ledger := newFakeLedger()
	minter, _, _ := newTestMinter(t, ledger, filepath.Join(t.TempDir(), "missing.json"))
	minter.display.ErrorPause = 3 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := minter.MintTo(ctx, Player1)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Less(t, time.Since(start), time.Second, "取消后不应等满展示暂停")
}

// TestMintToExistenceCheckError 查询账户失败按不存在处理
func TestMintToExistenceCheckError(t *testing.T) {
	path, _ := writeTestKeypair(t)
	ledger := newFakeLedger()
	ledger.existsErr = errors.New("rpc unavailable")
	minter, sink, _ := newTestMinter(t, ledger, path)

	result := minter.MintTo(context.Background(), Player1)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.True(t, result.CreatedAccount, "查询失败时按不存在处理并创建账户")
	assert.Contains(t, sink.list(), "status:Creating Player 1 account...")
}

// TestRefreshBalances 余额刷新
func TestRefreshBalances(t *testing.T) {
	t.Run("正常刷新", func(t *testing.T) {
		path, _ := writeTestKeypair(t)
		ledger := newFakeLedger()
		minter, sink, tracker := newTestMinter(t, ledger, path)

		ata1, err := DeriveTokenAccount(minter.player1, minter.mint)
		require.NoError(t, err)
		ata2, err := DeriveTokenAccount(minter.player2, minter.mint)
		require.NoError(t, err)

		ledger.existing[ata1] = true
		ledger.existing[ata2] = true
		ledger.balances[ata1] = 5
		ledger.balances[ata2] = 7

		state := minter.RefreshBalances(context.Background())

		assert.Equal(t, BalanceState{Player1: 5, Player2: 7}, state)
		assert.Equal(t, state, tracker.Get())
		assert.Equal(t, []string{"balances:5,7"}, sink.list())
	})

	t.Run("账户不存在按0处理", func(t *testing.T) {
		path, _ := writeTestKeypair(t)
		ledger := newFakeLedger()
		minter, sink, _ := newTestMinter(t, ledger, path)

		state := minter.RefreshBalances(context.Background())

		assert.Equal(t, BalanceState{}, state)
		assert.Equal(t, []string{"balances:0,0"}, sink.list(), "刷新结果总是入队")
	})

	t.Run("查询失败按0处理且仍然入队", func(t *testing.T) {
		path, _ := writeTestKeypair(t)
		ledger := newFakeLedger()
		ledger.existsErr = errors.New("rpc unavailable")
		minter, sink, tracker := newTestMinter(t, ledger, path)

		state := minter.RefreshBalances(context.Background())

		assert.Equal(t, BalanceState{}, state)
		assert.Equal(t, BalanceState{}, tracker.Get())
		assert.Equal(t, []string{"balances:0,0"}, sink.list())
	})
}

// TestTruncateMessage 错误信息按字符截断
func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "", truncateMessage(nil, 20))
	assert.Equal(t, "short", truncateMessage(errors.New("short"), 20))
	assert.Equal(t, "abcdefghijklmnopqrst", truncateMessage(errors.New("abcdefghijklmnopqrstuvwxyz"), 20))

	long := errors.New(strings.Repeat("错", 30))
	assert.Equal(t, 20, utf8.RuneCountInString(truncateMessage(long, 20)))
}

// TestBalanceTracker 余额跟踪器并发读写
func TestBalanceTracker(t *testing.T) {
	tracker := NewBalanceTracker()
	assert.Equal(t, BalanceState{}, tracker.Get())

	tracker.Set(BalanceState{Player1: 1, Player2: 2})
	assert.Equal(t, BalanceState{Player1: 1, Player2: 2}, tracker.Get())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.Set(BalanceState{Player1: float64(n)})
			tracker.Get()
		}(i)
	}
	wg.Wait()
}

func indexOf(list []string, target string) int {
	for i, item := range list {
		if item == target {
			return i
		}
	}
	return -1
}
