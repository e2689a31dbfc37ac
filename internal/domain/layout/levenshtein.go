package layout

import "github.com/samber/lo"

type editKind int

const (
	editMatch editKind = iota
	editSubstitute
	editInsert
	editDelete
)

// Substitution is more expensive than a single insertion or deletion but cheaper than both,
// so a variable changed in place is reported as one change instead of delete plus insert.
const (
	insertionCost    = 2
	deletionCost     = 2
	substitutionCost = 3
)

type edit struct {
	kind editKind
	orig int
	upd  int
}

// align returns a minimal cost edit script turning n original items into m updated items.
// Insertions have orig == -1 and deletions have upd == -1.
func align(n, m int, equal func(i, j int) bool) []edit {
	eq := make([][]bool, n)
	for i := range eq {
		eq[i] = make([]bool, m)
		for j := range eq[i] {
			eq[i][j] = equal(i, j)
		}
	}

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
		dp[i][0] = i * deletionCost
	}
	for j := 0; j <= m; j++ {
		dp[0][j] = j * insertionCost
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sub := dp[i-1][j-1]
			if !eq[i-1][j-1] {
				sub += substitutionCost
			}
			dp[i][j] = min(sub, dp[i-1][j]+deletionCost, dp[i][j-1]+insertionCost)
		}
	}

	var out []edit
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && eq[i-1][j-1] && dp[i][j] == dp[i-1][j-1]:
			out = append(out, edit{kind: editMatch, orig: i - 1, upd: j - 1})
			i, j = i-1, j-1
		case i > 0 && j > 0 && !eq[i-1][j-1] && dp[i][j] == dp[i-1][j-1]+substitutionCost:
			out = append(out, edit{kind: editSubstitute, orig: i - 1, upd: j - 1})
			i, j = i-1, j-1
		case i > 0 && dp[i][j] == dp[i-1][j]+deletionCost:
			out = append(out, edit{kind: editDelete, orig: i - 1, upd: -1})
			i--
		default:
			out = append(out, edit{kind: editInsert, orig: -1, upd: j - 1})
			j--
		}
	}
	return lo.Reverse(out)
}
