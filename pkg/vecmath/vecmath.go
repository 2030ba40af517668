// Package vecmath 提供向量基础运算：L2 归一化、余弦相似度、加权质心。
// 内部统一用 float64 累加，输入输出为 float32。
package vecmath

import (
	"fmt"
	"math"

	"github.com/rushteam/persona/core"
)

// Dot 返回点积；长度不一致时返回 0。
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Norm 返回 L2 范数
func Norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// Normalize 返回 v/‖v‖₂。零向量原样返回（拷贝），避免除零。
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// CosineSimilarity 返回 dot(a,b)/(‖a‖‖b‖)。
// 任一向量范数为 0、长度不一致或为空时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// 浮点误差可能让结果略微越界
	return math.Max(-1, math.Min(1, sim))
}

// Combine 返回 wa*a + wb*b；长度不一致时返回 nil。
func Combine(a, b []float32, wa, wb float64) []float32 {
	if len(a) != len(b) {
		return nil
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32(wa*float64(a[i]) + wb*float64(b[i]))
	}
	return out
}

// WeightedCentroid 返回 Σ(wᵢ·vᵢ) / Σwᵢ。
//
// 输入为空或总权重为 0 时返回 core.ErrEmptyInput；
// 向量长度不一致或 vectors/weights 数量不一致时返回 INVALID_INPUT。
func WeightedCentroid(vectors [][]float32, weights []float64) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, core.ErrEmptyInput
	}
	if len(vectors) != len(weights) {
		return nil, core.ErrInvalidInput(core.ModuleVector,
			fmt.Sprintf("vector: %d vectors but %d weights", len(vectors), len(weights)))
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	var total float64
	for i, v := range vectors {
		if len(v) != dim {
			return nil, core.ErrInvalidInput(core.ModuleVector,
				fmt.Sprintf("vector: dimension mismatch at %d: got %d, want %d", i, len(v), dim))
		}
		w := weights[i]
		total += w
		for j, x := range v {
			sum[j] += w * float64(x)
		}
	}
	if total == 0 {
		return nil, core.ErrEmptyInput
	}
	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / total)
	}
	return out, nil
}
