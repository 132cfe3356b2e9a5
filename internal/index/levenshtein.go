package index

// BoundedLevenshtein computes the edit distance between a and b, giving up
// early once the distance is known to exceed threshold. Returns
// threshold+1 in that case.
func BoundedLevenshtein(a, b string, threshold int) int {
	la, lb := len(a), len(b)
	if abs(la-lb) > threshold {
		return threshold + 1
	}
	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	current := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		current[0] = i
		rowMin := current[0]
		for j := 1; j <= lb; j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			current[j] = min(current[j-1]+1, prev[j]+1, prev[j-1]+cost)
			if current[j] < rowMin {
				rowMin = current[j]
			}
		}
		if rowMin > threshold {
			return threshold + 1
		}
		prev, current = current, prev
	}
	if prev[lb] > threshold {
		return threshold + 1
	}
	return prev[lb]
}
