package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

// OptimizeAction はクエリ最適化の結果を表示するコマンドのアクション（デバッグ用）
func OptimizeAction(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("クエリを指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cont := appCtx.Container

	optimized, err := cont.Optimizer.Optimize(ctx, query)
	if err != nil {
		return fmt.Errorf("クエリ最適化に失敗しました: %w", err)
	}

	fmt.Printf("original:   %s\n", optimized.Original)
	fmt.Printf("intent:     %s\n", optimized.Intent)
	fmt.Printf("difficulty: %s\n", optimized.Difficulty)
	fmt.Printf("course:     %s\n", optimized.CoursePreference)
	fmt.Printf("strategy:   %s\n", optimized.SearchStrategy)
	fmt.Printf("expanded:   %s\n", strings.Join(optimized.Expanded, " | "))
	fmt.Printf("terms:      %s\n", strings.Join(optimized.TechnicalTerms, ", "))
	fmt.Printf("embedding:  %s\n", optimized.EmbeddingText())

	if cmd.Bool("rewrite") {
		rewritten, err := cont.Rewriter.Rewrite(ctx, query, optimized.CoursePreference, nil)
		if err != nil {
			return fmt.Errorf("リライトに失敗しました: %w", err)
		}

		fmt.Printf("\nstrategies: %s\n", strings.Join(rewritten.AppliedStrategies, ", "))
		for i, v := range rewritten.RankedBest {
			fmt.Printf("%d. %s\n", i+1, v)
		}
	}

	return nil
}
