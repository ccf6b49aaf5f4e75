package display

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// Renderer 渲染协程，按固定间隔把队列中的更新依次应用到所有显示表面
type Renderer struct {
	queue    *Queue
	surfaces []Display
	interval time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewRenderer 创建渲染器
func NewRenderer(queue *Queue, interval time.Duration, surfaces ...Display) *Renderer {
	return &Renderer{
		queue:    queue,
		surfaces: surfaces,
		interval: interval,
		logger:   logger.GetModuleLogger("display"),
	}
}

// AddSurface 追加显示表面（需在Start之前调用）
func (r *Renderer) AddSurface(surface Display) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces = append(r.surfaces, surface)
}

// Start 启动渲染协程
func (r *Renderer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("显示渲染已启动", zap.Duration("interval", r.interval))
}

// Stop 停止渲染协程，退出前清空队列中剩余的更新
func (r *Renderer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()

	// 渲染剩余的终态信息
	r.drain()
	r.logger.Info("显示渲染已停止")
}

func (r *Renderer) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.drain()
		}
	}
}

// drain 把队列中当前积压的更新按顺序全部应用
func (r *Renderer) drain() {
	for {
		update, ok := r.queue.TryPop()
		if !ok {
			return
		}
		r.apply(update)
	}
}

func (r *Renderer) apply(update Update) {
	r.mu.Lock()
	surfaces := r.surfaces
	r.mu.Unlock()

	switch update.Kind {
	case UpdateStatus:
		for _, surface := range surfaces {
			surface.SetStatus(update.Status)
		}
	case UpdateBalances:
		for _, surface := range surfaces {
			surface.SetBalances(update.Player1, update.Player2)
		}
	default:
		r.logger.Warn("未知的显示更新类型", zap.String("kind", string(update.Kind)))
	}
}
