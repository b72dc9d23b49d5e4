package actions

// lcs returns the index pairs of a longest common subsequence of a and
// b under eq, in increasing order.
func lcs[T any](a, b []T, eq func(T, T) bool) [][2]int {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}
	stride := m + 1
	// table[i*stride+j] is the LCS length of a[i:] and b[j:]
	table := make([]int, (n+1)*stride)
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case eq(a[i], b[j]):
				table[i*stride+j] = table[(i+1)*stride+j+1] + 1
			case table[(i+1)*stride+j] >= table[i*stride+j+1]:
				table[i*stride+j] = table[(i+1)*stride+j]
			default:
				table[i*stride+j] = table[i*stride+j+1]
			}
		}
	}

	var out [][2]int
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case eq(a[i], b[j]):
			out = append(out, [2]int{i, j})
			i++
			j++
		case table[(i+1)*stride+j] >= table[i*stride+j+1]:
			i++
		default:
			j++
		}
	}
	return out
}
