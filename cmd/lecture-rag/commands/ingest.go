package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// IngestAction はセグメントJSONファイル群を取り込むコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("取り込むファイルを1つ以上指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.IngestService.IngestFiles(ctx, paths)
	if err != nil {
		return fmt.Errorf("取り込みに失敗しました: %w", err)
	}

	fmt.Printf("取り込み完了: run=%s files=%d failed=%d chunks=%d\n",
		result.RunID, result.FilesTotal, result.FilesFailed, result.ChunksStored)

	return nil
}
