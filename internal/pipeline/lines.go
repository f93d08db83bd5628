package pipeline

import "strings"

// SplitLines parses newline-delimited input into trimmed, non-blank items,
// keeping at most limit of them. limit <= 0 keeps everything.
func SplitLines(raw string, limit int) []string {
	return CleanList(strings.Split(raw, "\n"), limit)
}

// CleanList trims items, drops blank ones and truncates the result to limit.
// Extra items are dropped silently. limit <= 0 keeps everything.
func CleanList(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Fraction returns completed/total clamped to [0, 1]. An empty batch is
// reported as 0.
func Fraction(completed, total int) float64 {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 1
	}
	return float64(completed) / float64(total)
}
