package impersonation

import "math"

const ngramSize = 3

// VisualSimilarity is the Jaccard index of the character sets of both normalized strings
func VisualSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	sa := runeSet(na)
	sb := runeSet(nb)

	inter := 0
	for r := range sa {
		if _, ok := sb[r]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// EmbeddingSimilarity is the cosine similarity of L2-normalized character
// trigram frequency vectors over the normalized strings
func EmbeddingSimilarity(a, b string) float64 {
	va := trigramVector(a)
	vb := trigramVector(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}
	var dot float64
	for g, x := range va {
		if y, ok := vb[g]; ok {
			dot += x * y
		}
	}
	return dot
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{})
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func trigramVector(s string) map[string]float64 {
	runes := []rune(Normalize(s))
	counts := make(map[string]float64)
	for i := 0; i+ngramSize <= len(runes); i++ {
		counts[string(runes[i:i+ngramSize])]++
	}
	var norm float64
	for _, c := range counts {
		norm += c * c
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return counts
	}
	for g := range counts {
		counts[g] /= norm
	}
	return counts
}
