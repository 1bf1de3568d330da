package inference

import "math"

// softmax returns the normalized exponentials of logits divided by temp.
func softmax(logits []float32, temp float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	if temp <= 0 {
		temp = 1
	}
	maxV := math.Inf(-1)
	for _, l := range logits {
		maxV = math.Max(maxV, float64(l)/temp)
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l)/temp - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

// cosine returns the cosine similarity of a and b, or 0 when either is zero.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// meanPool averages per-token hidden states over positions where mask is 1.
// hidden is flat [seqLen * dim].
func meanPool(hidden []float32, mask []int64, dim int64) []float32 {
	out := make([]float32, dim)
	var count float32
	for s, m := range mask {
		if m != 1 {
			continue
		}
		count++
		off := int64(s) * dim
		for d := int64(0); d < dim; d++ {
			out[d] += hidden[off+d]
		}
	}
	if count == 0 {
		return out
	}
	inv := 1.0 / count
	for d := range out {
		out[d] *= inv
	}
	return out
}
