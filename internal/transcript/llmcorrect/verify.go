package llmcorrect

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// minSpellingSimilarity is the Jaro-Winkler score a replaced word must keep
// with the original for an unlisted change to count as a spelling fix.
const minSpellingSimilarity = 0.75

type indexPair struct {
	origIdx int
	corrIdx int
}

type changeSpan struct {
	origTokens []string
	corrTokens []string
}

// tokenLCS returns the longest common subsequence of a and b, comparing
// tokens case-insensitively and ignoring trailing punctuation.
func tokenLCS(a, b []string) []indexPair {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}
	eq := func(i, j int) bool { return normalizeForLookup(a[i]) == normalizeForLookup(b[j]) }

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case eq(i-1, j-1):
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	lcsLen := dp[m][n]
	if lcsLen == 0 {
		return nil
	}
	anchors := make([]indexPair, lcsLen)
	i, j, k := m, n, lcsLen-1
	for i > 0 && j > 0 {
		switch {
		case eq(i-1, j-1):
			anchors[k] = indexPair{origIdx: i - 1, corrIdx: j - 1}
			i--
			j--
			k--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return anchors
}

// extractChangeSpans returns the token runs between consecutive anchors where
// the two texts differ.
func extractChangeSpans(orig, corr []string, anchors []indexPair) []changeSpan {
	var spans []changeSpan
	oi, ci := 0, 0
	for _, a := range anchors {
		if oi < a.origIdx || ci < a.corrIdx {
			spans = append(spans, changeSpan{
				origTokens: orig[oi:a.origIdx],
				corrTokens: corr[ci:a.corrIdx],
			})
		}
		oi = a.origIdx + 1
		ci = a.corrIdx + 1
	}
	if oi < len(orig) || ci < len(corr) {
		spans = append(spans, changeSpan{
			origTokens: orig[oi:],
			corrTokens: corr[ci:],
		})
	}
	return spans
}

func normalizeForLookup(s string) string {
	return strings.ToLower(strings.TrimRight(s, ".,;:!?\"')"))
}

// isSpellingFix reports whether span replaces each word with a similarly
// spelled one, as opposed to rewording.
func isSpellingFix(span changeSpan) bool {
	if len(span.origTokens) != len(span.corrTokens) || len(span.origTokens) == 0 {
		return false
	}
	for i := range span.origTokens {
		o := normalizeForLookup(span.origTokens[i])
		c := normalizeForLookup(span.corrTokens[i])
		if matchr.JaroWinkler(o, c, false) < minSpellingSimilarity {
			return false
		}
	}
	return true
}

// verifyCorrectedText keeps only the changes in corrected that are either
// listed in corrections or plain spelling fixes. Anything else the model
// rewrote is reverted to the original words. Casing changes on otherwise
// equal words are kept.
func verifyCorrectedText(original, corrected string, corrections []Correction) (string, []Correction) {
	if original == corrected {
		return original, corrections
	}

	origTokens := strings.Fields(original)
	corrTokens := strings.Fields(corrected)
	anchors := tokenLCS(origTokens, corrTokens)
	spans := extractChangeSpans(origTokens, corrTokens, anchors)

	type corrKey struct{ orig, corr string }
	lookup := make(map[corrKey]Correction, len(corrections))
	for _, c := range corrections {
		lookup[corrKey{normalizeForLookup(c.Original), normalizeForLookup(c.Corrected)}] = c
	}

	var (
		result   []string
		verified []Correction
		spanIdx  int
	)
	resolve := func() {
		span := spans[spanIdx]
		spanIdx++
		origText := strings.Join(span.origTokens, " ")
		corrText := strings.Join(span.corrTokens, " ")
		if c, ok := lookup[corrKey{normalizeForLookup(origText), normalizeForLookup(corrText)}]; ok {
			result = append(result, span.corrTokens...)
			verified = append(verified, c)
			return
		}
		if isSpellingFix(span) {
			result = append(result, span.corrTokens...)
			for i := range span.origTokens {
				if normalizeForLookup(span.origTokens[i]) != normalizeForLookup(span.corrTokens[i]) {
					verified = append(verified, Correction{Original: span.origTokens[i], Corrected: span.corrTokens[i]})
				}
			}
			return
		}
		result = append(result, span.origTokens...)
	}

	oi, ci := 0, 0
	for _, a := range anchors {
		if oi < a.origIdx || ci < a.corrIdx {
			resolve()
		}
		result = append(result, corrTokens[a.corrIdx])
		oi = a.origIdx + 1
		ci = a.corrIdx + 1
	}
	if oi < len(origTokens) || ci < len(corrTokens) {
		resolve()
	}
	return strings.Join(result, " "), verified
}
