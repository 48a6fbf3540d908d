package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
)

// makeTranscript はテスト用のトランスクリプトを生成する
func makeTranscript(videoID string, segments []ingestdomain.Segment) ingestdomain.VideoTranscript {
	return ingestdomain.VideoTranscript{
		Course:   "javascript",
		Section:  "section-1",
		VideoID:  videoID,
		Segments: segments,
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	// 400文字のセグメント3件（0〜90秒）から最小サイズ以上のチャンクが1件以上生成され、全時間範囲をカバーする
	text := strings.Repeat("the closure captures scope ", 15) // 約400文字
	segments := []ingestdomain.Segment{
		{Text: text, StartTime: 0, EndTime: 30, VideoID: "v1"},
		{Text: text, StartTime: 30, EndTime: 60, VideoID: "v1"},
		{Text: text, StartTime: 60, EndTime: 90, VideoID: "v1"},
	}

	builder := NewBuilder()
	chunks := builder.Build(makeTranscript("v1", segments))

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, len(c.Content), DefaultMinSize)
	}
	assert.Equal(t, 0.0, chunks[0].Metadata.StartTime)
	assert.Equal(t, 90.0, chunks[len(chunks)-1].Metadata.EndTime)
}

func TestBuild_DiscardsShortChunks(t *testing.T) {
	// 最小サイズ未満しか蓄積できないセグメント列はチャンクを生成しない
	segments := []ingestdomain.Segment{
		{Text: "short text", StartTime: 0, EndTime: 5, VideoID: "v1"},
	}

	builder := NewBuilder()
	chunks := builder.Build(makeTranscript("v1", segments))

	assert.Empty(t, chunks)
}

func TestBuild_InvalidTimestamps(t *testing.T) {
	// 終了時刻が開始時刻より前のセグメントはゼロ長として扱われ、取り込みは失敗しない
	text := strings.Repeat("promise chain resolves eventually ", 12)
	segments := []ingestdomain.Segment{
		{Text: text, StartTime: 50, EndTime: 10, VideoID: "v1"},
	}

	builder := NewBuilder()
	chunks := builder.Build(makeTranscript("v1", segments))

	require.Len(t, chunks, 1)
	assert.Equal(t, 50.0, chunks[0].Metadata.StartTime)
	assert.Equal(t, 50.0, chunks[0].Metadata.EndTime)
	assert.Equal(t, 0.0, chunks[0].Metadata.Duration)
}

func TestMarkOverlaps_Symmetric(t *testing.T) {
	// 同一動画で開始時刻が時間窓内のチャンク同士は相互にoverlapWithへ記録される
	builder := NewBuilder()
	a := &ingestdomain.Chunk{ID: "a", Metadata: ingestdomain.ChunkMetadata{VideoID: "v1", StartTime: 0}}
	b := &ingestdomain.Chunk{ID: "b", Metadata: ingestdomain.ChunkMetadata{VideoID: "v1", StartTime: 45}}
	c := &ingestdomain.Chunk{ID: "c", Metadata: ingestdomain.ChunkMetadata{VideoID: "v1", StartTime: 120}}

	builder.MarkOverlaps([]*ingestdomain.Chunk{a, b, c})

	assert.Contains(t, a.Metadata.OverlapWith, "b")
	assert.Contains(t, b.Metadata.OverlapWith, "a")
	assert.NotContains(t, a.Metadata.OverlapWith, "c")
	assert.NotContains(t, c.Metadata.OverlapWith, "a")
}

func TestMarkOverlaps_DifferentVideos(t *testing.T) {
	// 動画が異なるチャンク同士は開始時刻が近くてもオーバーラップ扱いにならない
	builder := NewBuilder()
	a := &ingestdomain.Chunk{ID: "a", Metadata: ingestdomain.ChunkMetadata{VideoID: "v1", StartTime: 0}}
	b := &ingestdomain.Chunk{ID: "b", Metadata: ingestdomain.ChunkMetadata{VideoID: "v2", StartTime: 10}}

	builder.MarkOverlaps([]*ingestdomain.Chunk{a, b})

	assert.Empty(t, a.Metadata.OverlapWith)
	assert.Empty(t, b.Metadata.OverlapWith)
}

func TestScoreQuality_Range(t *testing.T) {
	// 品質スコアは常に[0,1]に収まる
	builder := NewBuilder()

	cases := []string{
		"tiny",
		strings.Repeat("plain words without symbols ", 20),
		strings.Repeat("function() { return closure; } async await promise ", 20),
	}
	for _, content := range cases {
		score := builder.scoreQuality(content)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScoreQuality_RewardsCodeAndTerms(t *testing.T) {
	// 同じ長さなら、コード的な記号と技術用語を含むチャンクの方がスコアが高い
	builder := NewBuilder()

	plain := strings.Repeat("plain spoken words about nothing special today ", 10)
	technical := strings.Repeat("the closure() { } captures scope and the promise resolves ", 8)

	assert.Greater(t, builder.scoreQuality(technical), builder.scoreQuality(plain))
}

func TestExtractKeywords(t *testing.T) {
	// 頻出語が優先され、4文字未満の語と一般語は除外される
	content := "closure closure closure scope scope the and is basically basically"
	keywords := extractKeywords(content, 5)

	require.NotEmpty(t, keywords)
	assert.Equal(t, "closure", keywords[0])
	assert.Contains(t, keywords, "scope")
	assert.NotContains(t, keywords, "the")
	assert.NotContains(t, keywords, "basically")
}
