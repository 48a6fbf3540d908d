package chunker

import (
	"fmt"
	"math"
	"sort"
	"strings"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	"github.com/jinford/lecture-rag/internal/shared/vocab"
)

const (
	// DefaultTargetSize は目標チャンクサイズ（文字数）
	DefaultTargetSize = 800

	// DefaultMinSize はこれ未満のチャンクを破棄する最小文字数
	DefaultMinSize = 300

	// DefaultAdvanceRatio は次チャンクの開始位置（クローズしたチャンクのセグメント範囲に対する比率）
	// 0.75 で約25%の時間的オーバーラップが生じる
	DefaultAdvanceRatio = 0.75

	// DefaultOverlapWindow はoverlapWith判定の時間窓（秒）
	DefaultOverlapWindow = 60.0

	// maxKeywords はチャンクごとに抽出するキーワードの上限
	maxKeywords = 5

	// qualityUpperSize は品質スコアで満点となるチャンクサイズの上限
	qualityUpperSize = 1200
)

// Builder はセグメント列からオーバーラップ付きチャンクを構築します
type Builder struct {
	targetSize    int
	minSize       int
	advanceRatio  float64
	overlapWindow float64
}

// Option はBuilderの設定オプション
type Option func(*Builder)

// WithSizes は目標サイズと最小サイズを設定する
func WithSizes(target, min int) Option {
	return func(b *Builder) {
		if target > 0 {
			b.targetSize = target
		}
		if min > 0 {
			b.minSize = min
		}
	}
}

// WithAdvanceRatio は次チャンク開始位置の比率を設定する
func WithAdvanceRatio(ratio float64) Option {
	return func(b *Builder) {
		if ratio > 0 && ratio <= 1 {
			b.advanceRatio = ratio
		}
	}
}

// WithOverlapWindow はoverlapWith判定の時間窓（秒）を設定する
func WithOverlapWindow(seconds float64) Option {
	return func(b *Builder) {
		if seconds > 0 {
			b.overlapWindow = seconds
		}
	}
}

// NewBuilder は新しいBuilderを作成します
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		targetSize:    DefaultTargetSize,
		minSize:       DefaultMinSize,
		advanceRatio:  DefaultAdvanceRatio,
		overlapWindow: DefaultOverlapWindow,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build は動画1本分のセグメント列からチャンクを構築します
// 最小サイズ未満のチャンクは破棄されます
func (b *Builder) Build(transcript ingestdomain.VideoTranscript) []*ingestdomain.Chunk {
	segments := transcript.Segments
	if len(segments) == 0 {
		return nil
	}

	var chunks []*ingestdomain.Chunk
	chunkIndex := 0
	start := 0

	for start < len(segments) {
		// 目標サイズに達するまでセグメントを蓄積
		var parts []string
		total := 0
		end := start

		for end < len(segments) {
			parts = append(parts, strings.TrimSpace(segments[end].Text))
			total += len(segments[end].Text)
			end++

			if total >= b.targetSize {
				break
			}
		}

		content := strings.Join(parts, " ")

		// 最小サイズ未満のチャンクは破棄
		if len(content) >= b.minSize {
			chunks = append(chunks, b.newChunk(transcript, content, segments[start:end], chunkIndex))
			chunkIndex++
		}

		// 次チャンクの開始位置をセグメント範囲の75%地点まで進める（約25%オーバーラップ）
		span := end - start
		advance := int(math.Ceil(float64(span) * b.advanceRatio))
		if advance < 1 {
			advance = 1
		}

		// 末尾に到達していた場合は終了
		if end >= len(segments) {
			break
		}

		start += advance
	}

	return chunks
}

// newChunk はメタデータ付きのチャンクを1つ生成します
func (b *Builder) newChunk(transcript ingestdomain.VideoTranscript, content string, segments []ingestdomain.Segment, index int) *ingestdomain.Chunk {
	startTime := segments[0].StartTime
	endTime := segments[len(segments)-1].EndTime

	// タイムスタンプ異常はゼロ長として扱う（取り込み全体を失敗させない）
	if endTime < startTime {
		endTime = startTime
	}

	id := fmt.Sprintf("%s/%s/%s/%d", transcript.Course, transcript.Section, transcript.VideoID, index)

	return &ingestdomain.Chunk{
		ID:      id,
		Content: content,
		Metadata: ingestdomain.ChunkMetadata{
			Course:       transcript.Course,
			Section:      transcript.Section,
			VideoID:      transcript.VideoID,
			StartTime:    startTime,
			EndTime:      endTime,
			Duration:     endTime - startTime,
			Topics:       vocab.MatchTopics(content),
			Keywords:     extractKeywords(content, maxKeywords),
			ChunkIndex:   index,
			OverlapWith:  []string{},
			QualityScore: b.scoreQuality(content),
			ContentHash:  ingestdomain.HashContent(content),
		},
	}
}

// MarkOverlaps は同一動画内で開始時刻が時間窓内にあるチャンク同士を相互にoverlapWithへ記録します
// 動画ごとのチャンク数は高々数十のためO(n²)で十分です
func (b *Builder) MarkOverlaps(chunks []*ingestdomain.Chunk) {
	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			a, c := chunks[i], chunks[j]

			if a.Metadata.VideoID != c.Metadata.VideoID {
				continue
			}

			if math.Abs(a.Metadata.StartTime-c.Metadata.StartTime) <= b.overlapWindow {
				a.Metadata.OverlapWith = append(a.Metadata.OverlapWith, c.ID)
				c.Metadata.OverlapWith = append(c.Metadata.OverlapWith, a.ID)
			}
		}
	}
}

// scoreQuality はチャンクの検索有用性を[0,1]で見積もります
// 長さ・コード的な記号の有無・技術用語の密度を重み付けして合算します
func (b *Builder) scoreQuality(content string) float64 {
	score := 0.0

	// 長さ: 目標域（minSize〜qualityUpperSize）に収まっていれば満点
	length := len(content)
	switch {
	case length >= b.minSize && length <= qualityUpperSize:
		score += 0.4
	case length > qualityUpperSize:
		score += 0.25
	default:
		score += 0.4 * float64(length) / float64(b.minSize)
	}

	// コード的な記号の存在
	if strings.ContainsAny(content, "(){}") {
		score += 0.3
	}

	// 技術用語の密度（1000文字あたり5語で満点）
	termCount := vocab.CountTechnicalTerms(content)
	density := float64(termCount) / (float64(length) / 1000.0)
	score += 0.3 * math.Min(density/5.0, 1.0)

	return math.Min(score, 1.0)
}

// extractKeywords は頻度ベースでチャンクの特徴語を抽出します
// 4文字未満の語と一般語は対象外です
func extractKeywords(content string, limit int) []string {
	freq := make(map[string]int)

	for _, word := range strings.Fields(strings.ToLower(content)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) < 4 || vocab.IsCommonWord(word) {
			continue
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for word := range freq {
		words = append(words, word)
	}

	// 頻度降順、同数なら辞書順（決定的な出力にするため）
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > limit {
		words = words[:limit]
	}

	return words
}
