package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

type Pair struct {
	A string
	B string
}

// GPT2 is a byte-level BPE tokenizer. It is safe for concurrent use.
type GPT2 struct {
	encoder     map[string]int
	decoder     []string
	bpeRanks    map[Pair]int
	byteEncoder [256]string
	byteDecoder map[rune]byte
	special     map[string]int
	eot         int

	mu    sync.RWMutex
	cache map[string][]string
}

// NewGPT2 builds a tokenizer from a token→id vocabulary and an ordered list
// of merges ("a b" per entry). Blank lines and "#" comments in merges are skipped.
func NewGPT2(vocab map[string]int, merges []string) (*GPT2, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	maxID := -1
	for _, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("negative token id %d", id)
		}
		maxID = max(maxID, id)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range vocab {
		decoder[id] = tok
	}

	bpeRanks := make(map[Pair]int, len(merges))
	rank := 0
	for _, line := range merges {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, b, ok := strings.Cut(line, " ")
		if !ok || a == "" || b == "" {
			return nil, fmt.Errorf("invalid merge %q", line)
		}
		p := Pair{A: a, B: b}
		if _, dup := bpeRanks[p]; !dup {
			bpeRanks[p] = rank
			rank++
		}
	}

	t := &GPT2{
		encoder:  vocab,
		decoder:  decoder,
		bpeRanks: bpeRanks,
		special:  make(map[string]int),
		eot:      -1,
		cache:    make(map[string][]string),
	}
	t.byteEncoder, t.byteDecoder = bytesToUnicode()
	if id, ok := vocab[EndOfText]; ok {
		t.special[EndOfText] = id
		t.eot = id
	}
	return t, nil
}

// NewByteLevel returns a tokenizer with no merges: ids 0-255 are the raw
// bytes and 256 is <|endoftext|>. Small models trained from scratch use it.
func NewByteLevel() *GPT2 {
	enc, _ := bytesToUnicode()
	vocab := make(map[string]int, 257)
	for b, s := range enc {
		vocab[s] = b
	}
	vocab[EndOfText] = 256
	t, _ := NewGPT2(vocab, nil)
	return t
}

// VocabSize is one past the largest token id.
func (t *GPT2) VocabSize() int { return len(t.decoder) }

// EOT returns the id of <|endoftext|>, or -1 if the vocabulary lacks it.
func (t *GPT2) EOT() int { return t.eot }

// TokenString returns the raw byte-encoded vocabulary entry for id.
func (t *GPT2) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *GPT2) Encode(text string) ([]int, error) {
	var ids []int
	for _, part := range t.splitSpecials(text) {
		if part.special {
			ids = append(ids, t.special[part.text])
			continue
		}
		for _, word := range splitWords(part.text) {
			for _, tok := range t.bpe(t.byteEncode(word)) {
				id, ok := t.encoder[tok]
				if !ok {
					return nil, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Decode maps ids back to text. Byte sequences that are not valid UTF-8
// decode to U+FFFD.
func (t *GPT2) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("%w: %d", ErrTokenOutOfRange, id)
		}
		tok := t.decoder[id]
		if _, ok := t.special[tok]; ok {
			b = append(b, tok...)
			continue
		}
		for _, r := range tok {
			if by, ok := t.byteDecoder[r]; ok {
				b = append(b, by)
			} else {
				b = utf8.AppendRune(b, r)
			}
		}
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

func (t *GPT2) byteEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteString(t.byteEncoder[s[i]])
	}
	return b.String()
}

func (t *GPT2) bpe(token string) []string {
	t.mu.RLock()
	cached, ok := t.cache[token]
	t.mu.RUnlock()
	if ok {
		return cached
	}

	word := splitRunes(token)
	for len(word) > 1 {
		bestRank := int(^uint(0) >> 1)
		var best Pair
		found := false
		for i := 0; i+1 < len(word); i++ {
			p := Pair{A: word[i], B: word[i+1]}
			if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
				bestRank = rank
				best = p
				found = true
			}
		}
		if !found {
			break
		}
		word = mergePair(word, best)
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// mergePair joins every non-overlapping left-to-right occurrence of pair.
func mergePair(word []string, pair Pair) []string {
	out := make([]string, 0, len(word))
	for i := 0; i < len(word); i++ {
		if i < len(word)-1 && word[i] == pair.A && word[i+1] == pair.B {
			out = append(out, word[i]+word[i+1])
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}

type textPart struct {
	text    string
	special bool
}

func (t *GPT2) splitSpecials(text string) []textPart {
	if len(t.special) == 0 || !strings.Contains(text, "<|") {
		return []textPart{{text: text}}
	}
	var parts []textPart
	for text != "" {
		idx, match := -1, ""
		for sp := range t.special {
			if i := strings.Index(text, sp); i >= 0 && (idx < 0 || i < idx || (i == idx && len(sp) > len(match))) {
				idx, match = i, sp
			}
		}
		if idx < 0 {
			parts = append(parts, textPart{text: text})
			break
		}
		if idx > 0 {
			parts = append(parts, textPart{text: text[:idx]})
		}
		parts = append(parts, textPart{text: match, special: true})
		text = text[idx+len(match):]
	}
	return parts
}

// bytesToUnicode maps every byte to a printable rune so BPE operates on
// strings without whitespace or control characters.
func bytesToUnicode() ([256]string, map[rune]byte) {
	var bs []int
	for i := int('!'); i <= int('~'); i++ {
		bs = append(bs, i)
	}
	for i := int('¡'); i <= int('¬'); i++ {
		bs = append(bs, i)
	}
	for i := int('®'); i <= int('ÿ'); i++ {
		bs = append(bs, i)
	}
	printable := make(map[int]bool, len(bs))
	for _, b := range bs {
		printable[b] = true
	}
	cs := append([]int(nil), bs...)
	n := 0
	for b := 0; b < 256; b++ {
		if !printable[b] {
			bs = append(bs, b)
			cs = append(cs, 256+n)
			n++
		}
	}

	var enc [256]string
	dec := make(map[rune]byte, 256)
	for i, b := range bs {
		r := rune(cs[i])
		enc[b] = string(r)
		dec[r] = byte(b)
	}
	return enc, dec
}
