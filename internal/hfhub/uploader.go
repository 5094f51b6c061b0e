// Package hfhub pushes dataset split files to a Hugging Face Hub dataset
// repository through the commit API, with Git LFS for large files.
package hfhub

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simeneide/djuplet/internal/metrics"
)

const (
	// DefaultBaseURL is the production Hub endpoint
	DefaultBaseURL = "https://huggingface.co"
	// DefaultTimeout covers repo and commit API calls
	DefaultTimeout = 300 * time.Second
	// LFSUploadTimeout covers individual LFS transfers, which carry file data
	LFSUploadTimeout = 600 * time.Second
	// MaxRetries bounds retry loops around preupload and LFS transfers
	MaxRetries = 3
	// MaxConcurrentLFS bounds parallel LFS file uploads
	MaxConcurrentLFS = 4
)

// Uploader pushes files to a Hugging Face dataset repository
type Uploader struct {
	token      string
	baseURL    string
	httpClient *http.Client
	lfsClient  *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// NewUploader creates an uploader authenticated with token
func NewUploader(token string, logger *slog.Logger, collector *metrics.Collector) *Uploader {
	return &Uploader{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		lfsClient:  &http.Client{Timeout: LFSUploadTimeout},
		logger:     logger.With("component", "hf_uploader"),
		metrics:    collector,
	}
}

// UploadDataset pushes every split file and the manifest from dir to repoID,
// creating the repository when it does not exist. Files at or above the LFS
// threshold go through the LFS batch API, uploaded concurrently; everything
// else is embedded in a single commit.
func (u *Uploader) UploadDataset(ctx context.Context, repoID, dir string) error {
	u.logger.Info("Starting upload to Hugging Face Hub", "repo_id", repoID, "dir", dir)

	files, err := collectDatasetFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no dataset files found in %s", dir)
	}

	if err := u.createRepo(ctx, repoID); err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}

	// .gitattributes keeps *.jsonl out of LFS so the Hub viewer renders the
	// records as text.
	operations := []CommitOperation{gitAttributesOperation()}
	var lfsFiles []LFSPointer
	localPaths := make(map[string]string) // oid -> local path

	for _, path := range files {
		op, err := PrepareFileOperation(path, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("failed to prepare %s: %w", path, err)
		}
		operations = append(operations, *op)
		if op.LFSFile != nil {
			lfsFiles = append(lfsFiles, LFSPointer{OID: op.LFSFile.SHA256, Size: op.LFSFile.Size})
			localPaths[op.LFSFile.SHA256] = path
			u.logger.Debug("File will use LFS", "file", op.Path, "size", op.LFSFile.Size)
		} else {
			u.logger.Debug("File will be embedded", "file", op.Path)
		}
	}

	if len(lfsFiles) > 0 {
		if err := u.uploadLFSFiles(ctx, repoID, lfsFiles, localPaths); err != nil {
			return err
		}
	}

	message := fmt.Sprintf("Upload %d dataset files", len(files))
	if err := u.createCommit(ctx, repoID, "main", operations, message); err != nil {
		return fmt.Errorf("failed to create commit: %w", err)
	}

	u.logger.Info("Upload complete",
		"repo_id", repoID,
		"files", len(files),
		"url", fmt.Sprintf("%s/datasets/%s", u.baseURL, repoID))
	return nil
}

// collectDatasetFiles returns the split files and manifest in dir, sorted so
// commits are stable across runs
func collectDatasetFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".jsonl") || name == "dataset_info.json" {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// uploadLFSFiles requests presigned URLs for all pointers and uploads the
// backing files with bounded parallelism
func (u *Uploader) uploadLFSFiles(ctx context.Context, repoID string, lfsFiles []LFSPointer, localPaths map[string]string) error {
	u.logger.Info("Uploading LFS files", "count", len(lfsFiles))

	uploadMap, err := u.PreuploadLFSWithRetry(ctx, repoID, lfsFiles, MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to preupload LFS: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentLFS)
	for oid, info := range uploadMap {
		path := localPaths[oid]
		g.Go(func() error {
			if err := u.UploadLFSFileWithRetry(gctx, info, path); err != nil {
				return fmt.Errorf("failed to upload LFS file %s: %w", path, err)
			}
			u.metrics.AddUploadBytes("lfs", info.Size)
			return nil
		})
	}
	return g.Wait()
}

func (u *Uploader) createRepo(ctx context.Context, repoID string) error {
	checkURL := fmt.Sprintf("%s/api/datasets/%s", u.baseURL, repoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.httpClient.Do(req)
	if err == nil {
		exists := resp.StatusCode == http.StatusOK
		resp.Body.Close()
		if exists {
			u.logger.Info("Repository already exists", "repo_id", repoID)
			return nil
		}
	}

	owner, name, found := strings.Cut(repoID, "/")
	if !found || owner == "" || name == "" {
		return fmt.Errorf("repo_id must look like owner/name, got %q", repoID)
	}

	payload, err := json.Marshal(map[string]any{
		"name":    name,
		"type":    "dataset",
		"private": false,
	})
	if err != nil {
		return err
	}

	createURL := u.baseURL + "/api/repos/create"
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err = u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create repo returned status %d: %s", resp.StatusCode, string(body))
	}

	u.logger.Info("Repository created", "repo_id", repoID)
	return nil
}

// createCommit sends all operations as one NDJSON commit: a header line
// followed by one line per file, LFS files referenced by pointer
func (u *Uploader) createCommit(ctx context.Context, repoID, branch string, operations []CommitOperation, message string) error {
	var lines []string

	header, err := json.Marshal(map[string]any{
		"key":   "header",
		"value": map[string]string{"summary": message, "description": ""},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal commit header: %w", err)
	}
	lines = append(lines, string(header))

	for _, op := range operations {
		var line map[string]any
		if op.LFSFile != nil {
			line = map[string]any{
				"key": "lfsFile",
				"value": map[string]any{
					"path": op.Path,
					"algo": "sha256",
					"oid":  op.LFSFile.SHA256,
					"size": op.LFSFile.Size,
				},
			}
		} else {
			line = map[string]any{
				"key": "file",
				"value": map[string]any{
					"content":  op.Content,
					"path":     op.Path,
					"encoding": "base64",
				},
			}
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("failed to marshal commit line for %s: %w", op.Path, err)
		}
		lines = append(lines, string(encoded))
	}

	payload := strings.Join(lines, "\n")
	url := fmt.Sprintf("%s/api/datasets/%s/commit/%s", u.baseURL, repoID, branch)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	u.logger.Debug("Creating commit", "url", url, "operations", len(operations))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("commit returned status %d: %s", resp.StatusCode, string(body))
	}

	u.metrics.AddUploadBytes("commit", int64(len(payload)))
	u.logger.Info("Commit created", "branch", branch, "operations", len(operations))
	return nil
}

// gitAttributesOperation builds the .gitattributes commit operation: the
// standard Hub LFS patterns with *.jsonl deliberately left out so split files
// stay plain text
func gitAttributesOperation() CommitOperation {
	patterns := []string{
		"*.7z", "*.arrow", "*.bin", "*.bz2", "*.ckpt", "*.ftz", "*.gz", "*.h5",
		"*.joblib", "*.lfs.*", "*.lz4", "*.mds", "*.mlmodel", "*.model",
		"*.msgpack", "*.npy", "*.npz", "*.onnx", "*.ot", "*.parquet", "*.pb",
		"*.pickle", "*.pkl", "*.pt", "*.pth", "*.rar", "*.safetensors",
		"saved_model/**/*", "*.tar.*", "*.tar", "*.tflite", "*.tgz", "*.wasm",
		"*.xz", "*.zip", "*.zst", "*tfevents*",
	}
	var b strings.Builder
	for _, p := range patterns {
		b.WriteString(p)
		b.WriteString(" filter=lfs diff=lfs merge=lfs -text\n")
	}
	return CommitOperation{
		Operation: "add",
		Path:      ".gitattributes",
		Content:   base64.StdEncoding.EncodeToString([]byte(b.String())),
		Encoding:  "base64",
	}
}
