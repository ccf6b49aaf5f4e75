package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/chain"
	"github.com/Woody4618/raspberry-token-minter/internal/config"
	"github.com/Woody4618/raspberry-token-minter/internal/display"
	"github.com/Woody4618/raspberry-token-minter/internal/kiosk"
	"github.com/Woody4618/raspberry-token-minter/internal/models"
	"github.com/Woody4618/raspberry-token-minter/internal/repository"
	"github.com/Woody4618/raspberry-token-minter/internal/utils"
	ws "github.com/Woody4618/raspberry-token-minter/internal/websocket"
)

// stubMinter 接口桩，铸币立即成功
type stubMinter struct {
	mu    sync.Mutex
	calls int
	block chan struct{} // 非nil时MintTo阻塞直到通道关闭
	state chain.BalanceState
}

func (s *stubMinter) MintTo(ctx context.Context, player chain.Player) *chain.MintResult {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}

	return &chain.MintResult{
		OrderNo:       uuid.New().String(),
		Player:        player,
		Wallet:        s.WalletFor(player),
		MintSignature: solana.Signature{0x01},
		Outcome:       chain.OutcomeSuccess,
		Duration:      time.Millisecond,
	}
}

func (s *stubMinter) RefreshBalances(ctx context.Context) chain.BalanceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubMinter) WalletFor(player chain.Player) solana.PublicKey {
	if player == chain.Player2 {
		return solana.MustPublicKeyFromBase58("GsfNSuZFrT2r4xzSndnCSs9tTXwt47etPqU8yFVnDcXd")
	}
	return solana.MustPublicKeyFromBase58("41QHseJmGe8pjTikTZF6ZWHRJaCQq7ZPXqDunD9kJhGK")
}

func (s *stubMinter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// apiTestEnv 搭好完整依赖的测试环境
type apiTestEnv struct {
	router      *Router
	cfg         *config.Config
	repo        *repository.MintRecordRepository
	coordinator *kiosk.Coordinator
	minter      *stubMinter
}

func newTestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	hash, err := utils.HashPassword("kiosk-admin-123")
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "test"},
		Serial:  config.SerialConfig{Enabled: true, MockMode: true},
		GPIO:    config.GPIOConfig{Enabled: true, MockMode: true},
		Audio:   config.AudioConfig{Volume: 20, Button1Track: 1, Button2Track: 2},
		Chain:   config.ChainConfig{MintAmount: 1000000000},
		Display: config.DisplayConfig{DrainInterval: 5 * time.Millisecond},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:       "test-secret-key",
				Issuer:       "token-minter",
				ExpireHours:  1,
				RefreshHours: 168,
			},
			Admin: config.AdminConfig{
				Username:     "admin",
				PasswordHash: hash,
			},
		},
	}

	db := repository.SetupTestDB()
	t.Cleanup(func() { repository.CleanupTestDB(db) })

	repo := repository.NewMintRecordRepository(db)
	tracker := chain.NewBalanceTracker()
	hub := ws.NewHub(&cfg.WebSocket, zap.NewNop())
	go hub.Run()
	queue := display.NewQueue()
	renderer := display.NewRenderer(queue, cfg.Display.DrainInterval)

	minter := &stubMinter{state: chain.BalanceState{Player1: 5, Player2: 8}}
	coordinator := kiosk.NewCoordinator(cfg, minter, tracker, repo, hub, queue, renderer)
	require.NoError(t, coordinator.Initialize())
	require.NoError(t, coordinator.Start())
	t.Cleanup(func() { _ = coordinator.Stop() })

	router := NewRouter(cfg, db, coordinator, repo, hub, zap.NewNop())

	return &apiTestEnv{
		router:      router,
		cfg:         cfg,
		repo:        repo,
		coordinator: coordinator,
		minter:      minter,
	}
}

// request 发起一次HTTP请求
func (e *apiTestEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.GetEngine().ServeHTTP(w, req)
	return w
}

// login 登录并返回访问令牌
func (e *apiTestEnv) login(t *testing.T) string {
	t.Helper()

	w := e.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "kiosk-admin-123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["running"])
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	t.Run("密码错误", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
			"username": "admin",
			"password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "LOGIN_FAILED", resp.Code)
	})

	t.Run("缺少字段", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
			"username": "admin",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("登录成功并刷新令牌", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
			"username": "admin",
			"password": "kiosk-admin-123",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.Equal(t, "admin", resp.Username)

		// 刷新令牌换新的访问令牌
		w = env.request(t, "POST", "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": resp.RefreshToken,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var refreshed AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
		assert.NotEmpty(t, refreshed.AccessToken)
	})

	t.Run("访问令牌不能用来刷新", func(t *testing.T) {
		token := env.login(t)
		w := env.request(t, "POST", "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": token,
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestLoginDisabledWithoutPasswordHash(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Security.Admin.PasswordHash = ""

	w := env.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "kiosk-admin-123",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ADMIN_DISABLED", resp.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	t.Run("无令牌", func(t *testing.T) {
		w := env.request(t, "GET", "/api/v1/kiosk/status", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("无效令牌", func(t *testing.T) {
		w := env.request(t, "GET", "/api/v1/kiosk/status", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("有效令牌", func(t *testing.T) {
		token := env.login(t)
		w := env.request(t, "GET", "/api/v1/kiosk/status", token, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["running"])
	})
}

func TestMintEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	t.Run("无效的玩家编号", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/kiosk/mint", token, map[string]int{"player": 3})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("铸币进行中返回409", func(t *testing.T) {
		env.minter.mu.Lock()
		env.minter.block = make(chan struct{})
		env.minter.mu.Unlock()

		w := env.request(t, "POST", "/api/v1/kiosk/mint", token, map[string]int{"player": 1})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

		w = env.request(t, "POST", "/api/v1/kiosk/mint", token, map[string]int{"player": 2})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "MINT_BUSY", resp.Code)

		env.minter.mu.Lock()
		block := env.minter.block
		env.minter.block = nil
		env.minter.mu.Unlock()
		close(block)

		// 完成后记录入库
		require.Eventually(t, func() bool {
			_, total, err := env.repo.Query(&models.MintRecordQuery{})
			return err == nil && total == 1
		}, 2*time.Second, 5*time.Millisecond)

		records, _, err := env.repo.Query(&models.MintRecordQuery{})
		require.NoError(t, err)
		assert.Equal(t, models.MintTriggerAPI, records[0].Trigger)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.request(t, "POST", "/api/v1/kiosk/refresh", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state chain.BalanceState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, float64(5), state.Player1)
	assert.Equal(t, float64(8), state.Player2)
}

func TestRecordsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	// 造三条记录
	require.NoError(t, env.repo.Create(repository.CreateTestMintRecord(1, models.MintStatusSuccess)))
	require.NoError(t, env.repo.Create(repository.CreateTestMintRecord(2, models.MintStatusSuccess)))
	require.NoError(t, env.repo.Create(repository.CreateTestMintRecord(1, models.MintStatusFailed)))

	t.Run("查询列表", func(t *testing.T) {
		w := env.request(t, "GET", "/api/v1/kiosk/records?limit=10", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data  []models.MintRecord `json:"data"`
			Total int64               `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(3), resp.Total)
		assert.Len(t, resp.Data, 3)
	})

	t.Run("按状态过滤", func(t *testing.T) {
		w := env.request(t, "GET", "/api/v1/kiosk/records?status=failed", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Total int64 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.Total)
	})

	t.Run("统计信息", func(t *testing.T) {
		w := env.request(t, "GET", "/api/v1/kiosk/records/stats", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats models.MintRecordStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, int64(3), stats.TotalCount)
		assert.Equal(t, int64(2), stats.TotalSuccess)
		assert.Equal(t, int64(1), stats.TotalFailed)
		assert.Equal(t, int64(2), stats.Player1Count)
	})

	t.Run("最新记录", func(t *testing.T) {
		w := env.request(t, "GET", "/api/v1/kiosk/records/latest?limit=2", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})
}

func TestAudioEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	t.Run("播放曲目", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/kiosk/audio/play", token, map[string]int{"track": 5})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("曲目超出范围", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/kiosk/audio/play", token, map[string]int{"track": 300})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("设置音量", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/kiosk/audio/volume", token, map[string]int{"volume": 10})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("音量超出范围", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/kiosk/audio/volume", token, map[string]int{"volume": 40})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("停止播放", func(t *testing.T) {
		w := env.request(t, "POST", "/api/v1/kiosk/audio/stop", token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/v1/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp["code"])
}
