package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// AskAction は質問へ回答するコマンドのアクション
// 複雑な質問は下位質問へ分解し、依存順に実行した結果を合成して回答する
func AskAction(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("質問を指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cont := appCtx.Container

	dec, err := cont.Decomposer.Decompose(ctx, question)
	if err != nil {
		return fmt.Errorf("質問の解析に失敗しました: %w", err)
	}

	results := cont.ExecuteService.Execute(ctx, question, dec)

	fmt.Println(results.SynthesizedAnswer)
	fmt.Println()
	fmt.Printf("(subqueries=%d answered=%d confidence=%.2f time=%s)\n",
		results.TotalSubqueries, len(results.SubqueryResults),
		results.OverallConfidence, results.ProcessingTime.Round(time.Millisecond))

	return nil
}
