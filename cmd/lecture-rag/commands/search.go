package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// SearchAction はインデックスを検索するコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("検索クエリを指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	limit := cmd.Int("limit")
	filter := searchdomain.SearchFilter{
		Course:  cmd.String("course"),
		Section: cmd.String("section"),
	}

	engine := appCtx.Container.Engine

	var results []*searchdomain.SearchResult
	switch cmd.String("mode") {
	case "semantic":
		results, err = engine.Search(ctx, query, limit, filter)
	case "keyword":
		results, err = engine.KeywordSearch(ctx, query, limit, filter)
	case "hybrid":
		results, err = engine.HybridSearch(ctx, query, limit, filter)
	default:
		return fmt.Errorf("不明な検索方式です: %q（semantic / keyword / hybrid）", cmd.String("mode"))
	}
	if err != nil {
		return fmt.Errorf("検索に失敗しました: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("該当するパッセージが見つかりませんでした")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s/%s %s (%.0fs-%.0fs)\n",
			i+1, r.Score,
			r.Chunk.Metadata.Course, r.Chunk.Metadata.Section, r.Chunk.Metadata.VideoID,
			r.Chunk.Metadata.StartTime, r.Chunk.Metadata.EndTime)
		fmt.Printf("   %s\n", snippet(r.Chunk.Content))
		if r.Reason != "" {
			fmt.Printf("   (%s)\n", r.Reason)
		}
	}

	return nil
}

// snippet は表示用にコンテンツを1行へ切り詰める
func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) > 160 {
		content = content[:160] + "..."
	}
	return content
}
