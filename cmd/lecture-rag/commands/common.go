package commands

import (
	"context"
	"fmt"

	"github.com/jinford/lecture-rag/internal/platform/container"
	"github.com/jinford/lecture-rag/pkg/config"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.Container
}

// NewAppContext は設定を読み込み、依存関係を初期化してAppContextを作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	cont, err := container.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗しました: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースを解放する
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}
