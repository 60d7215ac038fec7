package tokenizer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSplitWords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, my dog is a little", []string{"Hello", ",", " my", " dog", " is", " a", " little"}},
		{"a  b", []string{"a", " ", " b"}},
		{"end   ", []string{"end", "   "}},
		{"I'm here's", []string{"I", "'m", " here", "'s"}},
		{"we'll they've", []string{"we", "'ll", " they", "'ve"}},
		{"x\n\ny", []string{"x", "\n", "\n", "y"}},
		{"price 100", []string{"price", " 100"}},
		{"hi!!", []string{"hi", "!!"}},
		{" ?x", []string{" ?", "x"}},
		{"''", []string{"''"}},
		{"héllo wörld", []string{"héllo", " wörld"}},
		{"", []string{}},
	}
	for _, tc := range tests {
		got := splitWords(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitWords(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestBytesToUnicodeIsBijective(t *testing.T) {
	t.Parallel()
	enc, dec := bytesToUnicode()
	if len(dec) != 256 {
		t.Fatalf("expected 256 distinct runes, got %d", len(dec))
	}
	for b := 0; b < 256; b++ {
		r := []rune(enc[b])
		if len(r) != 1 {
			t.Fatalf("byte %d maps to %q", b, enc[b])
		}
		if dec[r[0]] != byte(b) {
			t.Fatalf("byte %d does not round-trip", b)
		}
	}
	if enc[' '] != "Ġ" {
		t.Fatalf("expected space to map to Ġ, got %q", enc[' '])
	}
}

// testVocab has all 256 single-byte tokens followed by a few merges.
func testVocab(t *testing.T) (map[string]int, []string) {
	t.Helper()
	enc, _ := bytesToUnicode()
	vocab := make(map[string]int, 300)
	for b := 0; b < 256; b++ {
		vocab[enc[b]] = b
	}
	merges := []string{
		"#version: 0.2",
		"h e",
		"l l",
		"he ll",
		"hell o",
		"Ġ w",
		"o r",
		"Ġw or",
		"Ġwor l",
		"Ġworl d",
	}
	for _, m := range merges[1:] {
		vocab[strings.ReplaceAll(m, " ", "")] = len(vocab)
	}
	vocab[EndOfText] = len(vocab)
	return vocab, merges
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	vocab, merges := testVocab(t)
	tok, err := NewGPT2(vocab, merges)
	if err != nil {
		t.Fatalf("NewGPT2: %v", err)
	}

	ids, err := tok.Encode("hello world")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{vocab["hello"], vocab["Ġworld"]}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected round trip, got %q", text)
	}

	// Unmerged text falls back to byte tokens and still round-trips.
	in := "hey\tyou ✓"
	ids, err = tok.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if out, _ := tok.Decode(ids); out != in {
		t.Fatalf("expected %q, got %q", in, out)
	}
}

func TestEncodeSpecialToken(t *testing.T) {
	t.Parallel()
	vocab, merges := testVocab(t)
	tok, err := NewGPT2(vocab, merges)
	if err != nil {
		t.Fatalf("NewGPT2: %v", err)
	}
	ids, err := tok.Encode("hello" + EndOfText + "hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{vocab["hello"], tok.EOT(), vocab["hello"]}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	text, _ := tok.Decode(ids)
	if text != "hello"+EndOfText+"hello" {
		t.Fatalf("unexpected decode %q", text)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	vocab, merges := testVocab(t)
	tok, _ := NewGPT2(vocab, merges)
	if _, err := tok.Decode([]int{-1}); !errors.Is(err, ErrTokenOutOfRange) {
		t.Fatalf("expected ErrTokenOutOfRange, got %v", err)
	}
	if _, err := tok.Decode([]int{tok.VocabSize()}); !errors.Is(err, ErrTokenOutOfRange) {
		t.Fatalf("expected ErrTokenOutOfRange, got %v", err)
	}
	// A lone continuation byte is not valid UTF-8.
	text, err := tok.Decode([]int{0x80})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "�" {
		t.Fatalf("expected replacement character, got %q", text)
	}
}

func TestNewGPT2Errors(t *testing.T) {
	t.Parallel()
	if _, err := NewGPT2(nil, nil); err == nil {
		t.Fatal("expected error for empty vocab")
	}
	if _, err := NewGPT2(map[string]int{"a": 0}, []string{"nospace"}); err == nil {
		t.Fatal("expected error for malformed merge")
	}
}

func TestLoadFormats(t *testing.T) {
	t.Parallel()
	vocab, merges := testVocab(t)
	vocabJSON, _ := json.Marshal(vocab)

	hfDir := t.TempDir()
	writeFile(t, filepath.Join(hfDir, "vocab.json"), vocabJSON)
	writeFile(t, filepath.Join(hfDir, "merges.txt"), []byte(strings.Join(merges, "\n")+"\n"))

	openaiDir := t.TempDir()
	writeFile(t, filepath.Join(openaiDir, "encoder.json"), vocabJSON)
	writeFile(t, filepath.Join(openaiDir, "vocab.bpe"), []byte(strings.Join(merges, "\n")))

	pairs := make([][]string, 0, len(merges)-1)
	for _, m := range merges[1:] {
		a, b, _ := strings.Cut(m, " ")
		pairs = append(pairs, []string{a, b})
	}
	tj, _ := json.Marshal(map[string]any{
		"model": map[string]any{"type": "BPE", "vocab": vocab, "merges": pairs},
	})
	tjDir := t.TempDir()
	writeFile(t, filepath.Join(tjDir, "tokenizer.json"), tj)

	for _, dir := range []string{hfDir, openaiDir, tjDir} {
		tok, err := Load(dir)
		if err != nil {
			t.Fatalf("Load(%s): %v", dir, err)
		}
		ids, err := tok.Encode("hello world")
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(ids) != 2 || ids[0] != vocab["hello"] {
			t.Fatalf("%s: unexpected ids %v", dir, ids)
		}
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

// TestPretrainedGPT2Encoding checks the known ids for the parity prompt. It
// needs a real GPT-2 tokenizer in MINGPT_GPT2_DIR.
func TestPretrainedGPT2Encoding(t *testing.T) {
	dir := os.Getenv("MINGPT_GPT2_DIR")
	if dir == "" {
		t.Skip("set MINGPT_GPT2_DIR to a downloaded gpt2 checkpoint")
	}
	tok, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ids, err := tok.Encode("Hello, my dog is a little")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{15496, 11, 616, 3290, 318, 257, 1310}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	if tok.EOT() != 50256 {
		t.Fatalf("expected EOT 50256, got %d", tok.EOT())
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestByteLevel(t *testing.T) {
	t.Parallel()
	tok := NewByteLevel()
	if tok.VocabSize() != 257 || tok.EOT() != 256 {
		t.Fatalf("expected 257 tokens with EOT 256, got %d/%d", tok.VocabSize(), tok.EOT())
	}
	ids, err := tok.Encode("hi!" + EndOfText)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{'h', 'i', '!', 256}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hi!"+EndOfText {
		t.Fatalf("expected round trip, got %q", text)
	}
}
