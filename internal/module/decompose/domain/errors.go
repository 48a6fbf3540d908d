package domain

import "errors"

var (
	// ErrDependencyNotMet は下位質問の依存先が未完了のまま実行順が到来したことを示す
	// 分解結果の内部整合性エラーであり、分解パス全体を部分結果での縮退へ移行させる
	ErrDependencyNotMet = errors.New("下位質問の依存関係が満たされていません")
)
