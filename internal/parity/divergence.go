package parity

import (
	"fmt"
	"math"

	"github.com/samcharles93/mingpt/internal/tensor"
)

// DivergenceTopK is the prediction-set size compared by Divergence.
const DivergenceTopK = 5

// Divergence describes how two logit tensors disagree per vocabulary row,
// beyond the pass/fail of AllClose. Rows are the [batch*time] positions.
type Divergence struct {
	Rows    int     `json:"rows"`
	MeanAbs float64 `json:"mean_abs"`
	RMSE    float64 `json:"rmse"`
	// MinCosine is the lowest cosine similarity over all rows.
	MinCosine float64 `json:"min_cosine"`
	// Top1Agreement is the fraction of rows whose argmax matches.
	Top1Agreement float64 `json:"top1_agreement"`
	// TopKOverlap is the mean share of the top DivergenceTopK ids both
	// sides predict.
	TopKOverlap float64 `json:"topk_overlap"`
	// FirstTop1Miss is the first row with a different argmax, or -1.
	FirstTop1Miss int `json:"first_top1_miss"`
}

// Diverge compares a against b row by row over the last axis. Non-finite
// values make the result meaningless and yield ok=false, as do mismatched
// shapes.
func Diverge(a, b *tensor.Tensor) (Divergence, bool) {
	d := Divergence{FirstTop1Miss: -1}
	if a == nil || b == nil || len(a.Shape) == 0 || len(a.Data) != len(b.Data) || len(a.Data) == 0 {
		return d, false
	}
	v := a.Shape[len(a.Shape)-1]
	if v == 0 || len(b.Shape) == 0 || b.Shape[len(b.Shape)-1] != v {
		return d, false
	}
	d.Rows = len(a.Data) / v
	d.MinCosine = 1

	var sumAbs, sumSq, overlap float64
	matches := 0
	for r := 0; r < d.Rows; r++ {
		ra := a.Data[r*v : (r+1)*v]
		rb := b.Data[r*v : (r+1)*v]
		var dot, na, nb float64
		for i := range ra {
			x, y := float64(ra[i]), float64(rb[i])
			if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
				return Divergence{FirstTop1Miss: -1}, false
			}
			diff := math.Abs(x - y)
			sumAbs += diff
			sumSq += diff * diff
			dot += x * y
			na += x * x
			nb += y * y
		}
		cos := 1.0
		if na > 0 && nb > 0 {
			cos = dot / (math.Sqrt(na) * math.Sqrt(nb))
		} else if na != nb {
			cos = 0
		}
		d.MinCosine = min(d.MinCosine, cos)

		ta := topKIndices(ra, DivergenceTopK)
		tb := topKIndices(rb, DivergenceTopK)
		if ta[0] == tb[0] {
			matches++
		} else if d.FirstTop1Miss < 0 {
			d.FirstTop1Miss = r
		}
		overlap += float64(countShared(ta, tb)) / float64(len(ta))
	}
	n := float64(len(a.Data))
	d.MeanAbs = sumAbs / n
	d.RMSE = math.Sqrt(sumSq / n)
	d.Top1Agreement = float64(matches) / float64(d.Rows)
	d.TopKOverlap = overlap / float64(d.Rows)
	return d, true
}

func (d Divergence) String() string {
	return fmt.Sprintf("rmse %.3g, min cosine %.6f, top-1 agreement %.1f%%, top-%d overlap %.1f%%",
		d.RMSE, d.MinCosine, 100*d.Top1Agreement, DivergenceTopK, 100*d.TopKOverlap)
}

// topKIndices returns the indices of the k largest values, largest first.
// Ties keep the lower index first.
func topKIndices(vals []float32, k int) []int {
	k = min(k, len(vals))
	if k <= 0 {
		return nil
	}
	idx := make([]int, 0, k)
	for i, v := range vals {
		pos := len(idx)
		for j, id := range idx {
			if v > vals[id] {
				pos = j
				break
			}
		}
		if pos == k {
			continue
		}
		if len(idx) < k {
			idx = append(idx, 0)
		}
		copy(idx[pos+1:], idx[pos:len(idx)-1])
		idx[pos] = i
	}
	return idx
}

func countShared(a, b []int) int {
	seen := make(map[int]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	n := 0
	for _, id := range b {
		if _, ok := seen[id]; ok {
			n++
		}
	}
	return n
}
