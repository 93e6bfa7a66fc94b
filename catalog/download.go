package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sammcj/llmem/logging"
)

const HuggingFaceURL = "https://huggingface.co"

// DefaultRepos is the Qwen3 family, the set of configs the catalog ships with.
var DefaultRepos = []string{
	"Qwen/Qwen3-235B-A22B-Thinking-2507-FP8",
	"Qwen/Qwen3-235B-A22B-Thinking-2507",
	"Qwen/Qwen3-235B-A22B-Instruct-2507-FP8",
	"Qwen/Qwen3-235B-A22B-Instruct-2507",
	"Qwen/Qwen3-30B-A3B-Thinking-2507-FP8",
	"Qwen/Qwen3-30B-A3B-Thinking-2507",
	"Qwen/Qwen3-30B-A3B-Instruct-2507-FP8",
	"Qwen/Qwen3-30B-A3B-Instruct-2507",
	"Qwen/Qwen3-4B-Thinking-2507-FP8",
	"Qwen/Qwen3-4B-Thinking-2507",
	"Qwen/Qwen3-4B-Instruct-2507-FP8",
	"Qwen/Qwen3-4B-Instruct-2507",
	"Qwen/Qwen3-235B-A22B",
	"Qwen/Qwen3-30B-A3B",
	"Qwen/Qwen3-32B",
	"Qwen/Qwen3-14B",
	"Qwen/Qwen3-8B",
	"Qwen/Qwen3-4B",
	"Qwen/Qwen3-1.7B",
	"Qwen/Qwen3-0.6B",
	"Qwen/Qwen3-235B-A22B-FP8",
	"Qwen/Qwen3-30B-A3B-FP8",
	"Qwen/Qwen3-32B-FP8",
	"Qwen/Qwen3-14B-FP8",
	"Qwen/Qwen3-8B-FP8",
	"Qwen/Qwen3-4B-FP8",
	"Qwen/Qwen3-1.7B-FP8",
	"Qwen/Qwen3-0.6B-FP8",
	"Qwen/Qwen3-235B-A22B-GPTQ-Int4",
	"Qwen/Qwen3-30B-A3B-GPTQ-Int4",
	"Qwen/Qwen3-32B-AWQ",
	"Qwen/Qwen3-14B-AWQ",
	"Qwen/Qwen3-8B-AWQ",
	"Qwen/Qwen3-4B-AWQ",
	"Qwen/Qwen3-1.7B-GPTQ-Int8",
	"Qwen/Qwen3-0.6B-GPTQ-Int8",
	"Qwen/Qwen3-30B-A3B-Base",
	"Qwen/Qwen3-14B-Base",
	"Qwen/Qwen3-8B-Base",
	"Qwen/Qwen3-4B-Base",
	"Qwen/Qwen3-1.7B-Base",
	"Qwen/Qwen3-0.6B-Base",
}

// DownloadResult records what happened to one repository.
type DownloadResult struct {
	Repo    string
	Path    string
	Skipped bool
	Err     error
}

// Downloader fetches config.json files from HuggingFace into a catalog directory.
type Downloader struct {
	Client  *retryablehttp.Client
	BaseURL string
	Dir     string
	Token   string
	// A random pause in [MinDelay, MaxDelay) follows every request
	MinDelay time.Duration
	MaxDelay time.Duration
}

func NewRetryClient(retryMax int) *retryablehttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.Logger = nil
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		logging.DebugLogger.Debug().
			Str(req.Method, req.URL.String()).
			Int("attempt", attempt).
			Msg("Requesting model config")
	}
	return retryClient
}

func NewDownloader(dir, token string) *Downloader {
	return &Downloader{
		Client:   NewRetryClient(3),
		BaseURL:  HuggingFaceURL,
		Dir:      dir,
		Token:    token,
		MinDelay: time.Second,
		MaxDelay: 3 * time.Second,
	}
}

// ConfigURL is where HuggingFace serves the raw config.json of a repository.
func (d *Downloader) ConfigURL(repo string) string {
	return fmt.Sprintf("%s/%s/raw/main/config.json", d.BaseURL, repo)
}

// Download fetches each repository's config into Dir as <model>.json, skipping files that
// already exist. A failed repository is recorded in its result and does not stop the run;
// only a cancelled context or an unusable directory returns an error.
func (d *Downloader) Download(ctx context.Context, repos []string) ([]DownloadResult, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	results := make([]DownloadResult, 0, len(repos))
	for _, repo := range repos {
		target := filepath.Join(d.Dir, path.Base(repo)+".json")
		result := DownloadResult{Repo: repo, Path: target}

		if _, err := os.Stat(target); err == nil {
			logging.InfoLogger.Info().Str("repo", repo).Msg("Model config already exists")
			result.Skipped = true
			results = append(results, result)
			continue
		}

		result.Err = d.fetch(ctx, repo, target)
		if result.Err != nil {
			if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
				return results, ctx.Err()
			}
			logging.ErrorLogger.Error().Err(result.Err).Str("repo", repo).Msg("Error downloading model config")
		} else {
			logging.InfoLogger.Info().Str("repo", repo).Str("path", target).Msg("Model config downloaded")
		}
		results = append(results, result)

		if err := sleepContext(ctx, d.jitter()); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (d *Downloader) fetch(ctx context.Context, repo, target string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, d.ConfigURL(repo), nil)
	if err != nil {
		return err
	}
	if d.Token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", d.Token))
	}
	req.Header.Set("User-Agent", "llmem")

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status fetching %s: %s", repo, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read config for %s: %w", repo, err)
	}
	var cfg ModelConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return fmt.Errorf("config for %s is not valid JSON: %w", repo, err)
	}

	return os.WriteFile(target, body, 0644)
}

func (d *Downloader) jitter() time.Duration {
	if d.MaxDelay <= d.MinDelay {
		return d.MinDelay
	}
	return d.MinDelay + rand.N(d.MaxDelay-d.MinDelay)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
