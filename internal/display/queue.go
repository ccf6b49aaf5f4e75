package display

import "sync"

// Queue 显示更新队列
// 任意协程推送，渲染协程按入队顺序消费，无容量上限
type Queue struct {
	mu    sync.Mutex
	items []Update
}

// NewQueue 创建显示更新队列
func NewQueue() *Queue {
	return &Queue{}
}

// Push 入队一条更新
func (q *Queue) Push(update Update) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, update)
}

// PushStatus 入队状态文本更新，空串表示清除
func (q *Queue) PushStatus(status string) {
	q.Push(Update{Kind: UpdateStatus, Status: status})
}

// PushBalances 入队余额更新
func (q *Queue) PushBalances(player1, player2 float64) {
	q.Push(Update{Kind: UpdateBalances, Player1: player1, Player2: player2})
}

// TryPop 非阻塞出队，队列为空时返回false
func (q *Queue) TryPop() (Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Update{}, false
	}

	update := q.items[0]
	q.items = q.items[1:]
	return update, true
}

// Len 当前排队的更新条数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
