package engine

import "math"

// CosineSimilarity は2つのベクトルのコサイン類似度を計算します
// いずれかのノルムが0の場合や長さが一致しない場合は0を返します（ゼロ除算・NaNを発生させない）
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
