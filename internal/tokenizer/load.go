package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

// Load reads a GPT-2 tokenizer from dir. It accepts, in order of preference,
// the HuggingFace pair vocab.json + merges.txt, the OpenAI pair
// encoder.json + vocab.bpe, or a single tokenizer.json.
func Load(dir string) (*GPT2, error) {
	pairs := [][2]string{
		{"vocab.json", "merges.txt"},
		{"encoder.json", "vocab.bpe"},
	}
	for _, p := range pairs {
		vocabPath := filepath.Join(dir, p[0])
		mergesPath := filepath.Join(dir, p[1])
		if fileExists(vocabPath) && fileExists(mergesPath) {
			return LoadFiles(vocabPath, mergesPath)
		}
	}
	tokJSON := filepath.Join(dir, "tokenizer.json")
	if fileExists(tokJSON) {
		return LoadTokenizerJSON(tokJSON)
	}
	return nil, fmt.Errorf("%w in %s", ErrNoTokenizer, dir)
}

// LoadFiles reads a JSON vocabulary and a newline-separated merges file.
func LoadFiles(vocabPath, mergesPath string) (*GPT2, error) {
	raw, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, err
	}
	var vocab map[string]int
	if err := json.Unmarshal(raw, &vocab); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(vocabPath), err)
	}
	mergesRaw, err := os.ReadFile(mergesPath)
	if err != nil {
		return nil, err
	}
	return NewGPT2(vocab, strings.Split(string(mergesRaw), "\n"))
}

type tokenizerJSON struct {
	Model struct {
		Type   string         `json:"type"`
		Vocab  map[string]int `json:"vocab"`
		Merges []any          `json:"merges"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// LoadTokenizerJSON reads a HuggingFace tokenizer.json with a BPE model.
// Merges may be either "a b" strings or ["a","b"] pairs.
func LoadTokenizerJSON(path string) (*GPT2, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tj tokenizerJSON
	if err := json.Unmarshal(raw, &tj); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if !strings.EqualFold(tj.Model.Type, "BPE") {
		return nil, fmt.Errorf("unsupported tokenizer model: %s", tj.Model.Type)
	}
	vocab := tj.Model.Vocab
	if vocab == nil {
		vocab = make(map[string]int, len(tj.AddedTokens))
	}
	for _, at := range tj.AddedTokens {
		vocab[at.Content] = at.ID
	}
	merges := make([]string, 0, len(tj.Model.Merges))
	for _, m := range tj.Model.Merges {
		switch v := m.(type) {
		case string:
			merges = append(merges, v)
		case []any:
			if len(v) != 2 {
				return nil, fmt.Errorf("invalid merge entry %v", v)
			}
			a, aok := v[0].(string)
			b, bok := v[1].(string)
			if !aok || !bok {
				return nil, fmt.Errorf("invalid merge entry %v", v)
			}
			merges = append(merges, a+" "+b)
		default:
			return nil, errors.New("invalid merge entry type")
		}
	}
	return NewGPT2(vocab, merges)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
