package tokenizer

import "unicode"

// splitWords breaks text the way GPT-2's pre-tokenizer does:
//
//	's|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+
//
// Go's regexp has no lookahead, so the alternation is evaluated by hand in the
// same leftmost-first order.
func splitWords(text string) []string {
	rs := []rune(text)
	n := len(rs)
	out := make([]string, 0, n/3+1)
	for i := 0; i < n; {
		j := matchAt(rs, i)
		out = append(out, string(rs[i:j]))
		i = j
	}
	return out
}

// matchAt returns the end of the token starting at i. It always advances.
func matchAt(rs []rune, i int) int {
	n := len(rs)
	if rs[i] == '\'' && i+1 < n {
		switch rs[i+1] {
		case 's', 't', 'm', 'd':
			return i + 2
		case 'r', 'v':
			if i+2 < n && rs[i+2] == 'e' {
				return i + 3
			}
		case 'l':
			if i+2 < n && rs[i+2] == 'l' {
				return i + 3
			}
		}
	}
	for _, class := range []func(rune) bool{isLetter, isNumber, isOther} {
		start := i
		if rs[start] == ' ' && start+1 < n && class(rs[start+1]) {
			start++
		}
		if class(rs[start]) {
			j := start + 1
			for j < n && class(rs[j]) {
				j++
			}
			return j
		}
	}
	// rs[i] is whitespace here.
	j := i + 1
	for j < n && isSpace(rs[j]) {
		j++
	}
	if j < n && j-i > 1 {
		// \s+(?!\S): leave the last space to prefix the following word.
		return j - 1
	}
	return j
}

func isLetter(r rune) bool { return unicode.IsLetter(r) }
func isNumber(r rune) bool { return unicode.IsNumber(r) }
func isOther(r rune) bool  { return !isSpace(r) && !isLetter(r) && !isNumber(r) }

// isSpace matches Python's str.isspace, which also treats the ASCII
// information separators as whitespace.
func isSpace(r rune) bool {
	if r >= 0x1c && r <= 0x1f {
		return true
	}
	return unicode.IsSpace(r)
}
