package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jinford/lecture-rag/internal/module/llm/domain"
)

// RateLimiter はAPI呼び出しのレート制限を管理する
type RateLimiter struct {
	mu sync.Mutex

	// maxRequestsPerMinute は1分あたりの最大リクエスト数
	maxRequestsPerMinute int

	// tokens はトークンバケット
	tokens int

	// lastRefill は最後にトークンを補充した時刻
	lastRefill time.Time

	// waitQueue は待機中のリクエスト数
	waitQueue int

	// semaphore は並列実行を制御するセマフォ
	semaphore chan struct{}
}

// NewRateLimiter は新しいRateLimiterを作成する
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		maxRequestsPerMinute: maxRequestsPerMinute,
		tokens:               maxRequestsPerMinute,
		lastRefill:           time.Now(),
		semaphore:            make(chan struct{}, maxRequestsPerMinute),
	}
}

// Wait はレート制限に従って待機し、実行権限を取得する
// contextがキャンセルされた場合はエラーを返す
func (rl *RateLimiter) Wait(ctx context.Context) error {
	// セマフォで並列度を制御
	select {
	case rl.semaphore <- struct{}{}:
		// セマフォを取得できた
	case <-ctx.Done():
		return ctx.Err()
	}

	// トークンバケットアルゴリズムでレート制限
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for {
		// トークンを補充
		rl.refillTokens()

		// トークンがある場合は実行を許可
		if rl.tokens > 0 {
			rl.tokens--
			return nil
		}

		// トークンがない場合は待機
		rl.waitQueue++
		rl.mu.Unlock()

		// 次の補充まで待機
		select {
		case <-time.After(time.Second):
			// タイムアウト後に再試行
		case <-ctx.Done():
			rl.mu.Lock()
			rl.waitQueue--
			<-rl.semaphore // セマフォを解放
			return ctx.Err()
		}

		rl.mu.Lock()
		rl.waitQueue--
	}
}

// Release は実行権限を解放する
// Wait()の後に必ずRelease()を呼ぶこと（通常はdefer文で）
func (rl *RateLimiter) Release() {
	<-rl.semaphore
}

// refillTokens はトークンを補充する（内部用）
// 呼び出し側でロックを取得していることを前提とする
func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	if elapsed < time.Minute {
		return
	}

	// 1分以上経過している場合はトークンを補充
	minutes := int(elapsed.Minutes())
	tokensToAdd := minutes * rl.maxRequestsPerMinute

	rl.tokens = min(rl.tokens+tokensToAdd, rl.maxRequestsPerMinute)
	rl.lastRefill = rl.lastRefill.Add(time.Duration(minutes) * time.Minute)
}

// ThrottledClient はレート制限付きのLLMクライアント
type ThrottledClient struct {
	client      domain.Client
	rateLimiter *RateLimiter
}

// NewThrottledClient はレート制限付きのLLMクライアントを作成する
func NewThrottledClient(client domain.Client, maxRequestsPerMinute int) *ThrottledClient {
	return &ThrottledClient{
		client:      client,
		rateLimiter: NewRateLimiter(maxRequestsPerMinute),
	}
}

// GenerateCompletion はレート制限に従ってLLM APIを呼び出す
func (tc *ThrottledClient) GenerateCompletion(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	// レート制限に従って待機
	if err := tc.rateLimiter.Wait(ctx); err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	defer tc.rateLimiter.Release()

	// 実際のLLM APIを呼び出す
	return tc.client.GenerateCompletion(ctx, req)
}

// インターフェース実装の確認
var _ domain.Client = (*ThrottledClient)(nil)
