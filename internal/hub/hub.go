// Package hub locates and downloads pretrained GPT-2 checkpoints from the
// HuggingFace hub into a local models directory.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/schollz/progressbar/v3"

	"github.com/samcharles93/mingpt/internal/logger"
	"github.com/samcharles93/mingpt/internal/safetensors"
)

// DefaultBaseURL is the HuggingFace hub endpoint.
const DefaultBaseURL = "https://huggingface.co"

// Files is what a model directory must hold.
var Files = []string{"config.json", "model.safetensors", "vocab.json", "merges.txt"}

var repos = map[string]string{
	"gpt2":        "openai-community/gpt2",
	"gpt2-medium": "openai-community/gpt2-medium",
	"gpt2-large":  "openai-community/gpt2-large",
	"gpt2-xl":     "openai-community/gpt2-xl",
}

var (
	ErrUnknownModel = errors.New("no pretrained checkpoint for model type")
	ErrNotCached    = errors.New("model not downloaded")
)

// Known returns the hub repository for modelType.
func Known(modelType string) (string, bool) {
	repo, ok := repos[modelType]
	return repo, ok
}

// Models lists the model types with a hub repository.
func Models() []string {
	out := make([]string, 0, len(repos))
	for k := range repos {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dir is where modelType lives under root.
func Dir(root, modelType string) string {
	return filepath.Join(root, modelType)
}

// Resolve returns the local directory of modelType if every file is present.
func Resolve(modelType, root string) (string, error) {
	if _, ok := Known(modelType); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, modelType)
	}
	dir := Dir(root, modelType)
	if missing := Missing(dir); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s lacks %v (run fetch)", ErrNotCached, dir, missing)
	}
	return dir, nil
}

// Missing lists the required files absent from dir.
func Missing(dir string) []string {
	var out []string
	for _, f := range Files {
		if st, err := os.Stat(filepath.Join(dir, f)); err != nil || st.IsDir() {
			out = append(out, f)
		}
	}
	return out
}

// Options configures Fetch.
type Options struct {
	BaseURL  string       // DefaultBaseURL when empty
	Revision string       // "main" when empty
	Client   *http.Client // http.DefaultClient when nil
	Token    string       // optional bearer token
	// Progress receives a progress bar per file; nil disables it.
	Progress io.Writer
	Log      logger.Logger
}

// Fetch downloads the missing files of modelType into root/<modelType> and
// returns that directory. Each file is written to a temporary name and
// renamed into place once complete, so an interrupted download is retried
// from scratch on the next call.
func Fetch(ctx context.Context, modelType, root string, opts Options) (string, error) {
	repo, ok := Known(modelType)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, modelType)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Revision == "" {
		opts.Revision = "main"
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	log := opts.Log
	if log == nil {
		log = logger.FromContext(ctx)
	}

	dir := Dir(root, modelType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	missing := Missing(dir)
	if len(missing) == 0 {
		log.Debug("model already downloaded", "dir", dir)
		return dir, nil
	}
	for _, name := range missing {
		url := fmt.Sprintf("%s/%s/resolve/%s/%s", opts.BaseURL, repo, opts.Revision, name)
		log.Info("downloading", "file", name, "repo", repo)
		if err := download(ctx, url, filepath.Join(dir, name), opts); err != nil {
			return "", fmt.Errorf("fetch %s: %w", name, err)
		}
	}
	if slices.Contains(missing, "model.safetensors") {
		sf, err := safetensors.Open(filepath.Join(dir, "model.safetensors"))
		if err != nil {
			_ = os.Remove(filepath.Join(dir, "model.safetensors"))
			return "", fmt.Errorf("downloaded weights are unreadable: %w", err)
		}
		_ = sf.Close()
	}
	return dir, nil
}

func download(ctx context.Context, url, dst string, opts Options) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}
	resp, err := opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	if opts.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription(filepath.Base(dst)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
		w = io.MultiWriter(tmp, bar)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("short download: %d of %d bytes", n, resp.ContentLength)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
