package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/lecture-rag/cmd/lecture-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "lecture-rag",
		Usage: "講義トランスクリプト向け検索・質問応答基盤",
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "トランスクリプトのセグメントJSONを取り込みインデックスを構築",
				ArgsUsage: "<file> [file...]",
				Flags:     []cli.Flag{envFlag},
				Action:    commands.IngestAction,
			},
			{
				Name:      "search",
				Usage:     "インデックスを検索して関連パッセージを表示",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					envFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "最大結果件数",
						Value: 10,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "検索方式（semantic / keyword / hybrid）",
						Value: "hybrid",
					},
					&cli.StringFlag{
						Name:  "course",
						Usage: "講座で絞り込み",
					},
					&cli.StringFlag{
						Name:  "section",
						Usage: "セクションで絞り込み",
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:      "ask",
				Usage:     "質問に回答（複雑な質問は下位質問へ分解して実行）",
				ArgsUsage: "<question>",
				Flags:     []cli.Flag{envFlag},
				Action:    commands.AskAction,
			},
			{
				Name:      "optimize",
				Usage:     "クエリ最適化の結果を表示（デバッグ用）",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					envFlag,
					&cli.BoolFlag{
						Name:  "rewrite",
						Usage: "マルチ戦略リライトの結果も表示",
					},
				},
				Action: commands.OptimizeAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("コマンドの実行に失敗しました: %v", err)
	}
}
