package domain

// Segment は動画1本分の文字起こしから切り出された時刻付きテキスト断片を表す
// 外部のSegmenterが生成し、動画内で時系列順に並んでいる
type Segment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start"` // 秒
	EndTime   float64 `json:"end"`   // 秒
	VideoID   string  `json:"videoId"`
}

// VideoTranscript はSegmenterの出力単位（動画1本分のセグメント列）を表す
type VideoTranscript struct {
	Course   string    `json:"course"`
	Section  string    `json:"section"`
	VideoID  string    `json:"videoId"`
	Segments []Segment `json:"segments"`
}
