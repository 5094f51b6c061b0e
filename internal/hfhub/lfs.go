package hfhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"
)

// LFSPointer identifies one file headed for LFS storage
type LFSPointer struct {
	OID  string // SHA256 hex digest
	Size int64
}

// LFSUploadInfo carries the presigned upload target for one object. An empty
// UploadURL means the object already exists on the server.
type LFSUploadInfo struct {
	OID       string
	Size      int64
	UploadURL string
	Header    map[string]string
}

// LFSBatchObject is one object in the batch request and response
type LFSBatchObject struct {
	OID     string      `json:"oid"`
	Size    int64       `json:"size"`
	Actions *LFSActions `json:"actions,omitempty"`
}

// LFSActions holds the server-provided transfer actions
type LFSActions struct {
	Upload *LFSAction `json:"upload,omitempty"`
	Verify *LFSAction `json:"verify,omitempty"`
}

// LFSAction is a single presigned transfer step
type LFSAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header"`
}

// LFSBatchRequest is the Git LFS batch API request body
type LFSBatchRequest struct {
	Operation string           `json:"operation"`
	Transfers []string         `json:"transfers"`
	Objects   []LFSBatchObject `json:"objects"`
	HashAlgo  string           `json:"hash_algo"`
}

// LFSBatchResponse is the Git LFS batch API response body
type LFSBatchResponse struct {
	Objects  []LFSBatchObject `json:"objects"`
	Transfer string           `json:"transfer,omitempty"`
}

// PreuploadLFS asks the LFS batch endpoint for presigned upload URLs. Objects
// the server already has come back without actions, which is not an error.
func (u *Uploader) PreuploadLFS(ctx context.Context, repoID string, files []LFSPointer) (map[string]*LFSUploadInfo, error) {
	if len(files) == 0 {
		return map[string]*LFSUploadInfo{}, nil
	}

	url := fmt.Sprintf("%s/datasets/%s.git/info/lfs/objects/batch", u.baseURL, repoID)

	objects := make([]LFSBatchObject, len(files))
	for i, file := range files {
		objects[i] = LFSBatchObject{OID: file.OID, Size: file.Size}
	}
	payload, err := json.Marshal(LFSBatchRequest{
		Operation: "upload",
		Transfers: []string{"basic", "multipart"},
		Objects:   objects,
		HashAlgo:  "sha256",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/vnd.git-lfs+json")
	req.Header.Set("Accept", "application/vnd.git-lfs+json")

	u.logger.Debug("LFS batch request", "url", url, "files", len(files))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("LFS batch returned status %d: %s", resp.StatusCode, string(body))
	}

	var batchResp LFSBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batchResp); err != nil {
		return nil, fmt.Errorf("failed to decode LFS batch response: %w", err)
	}

	uploadMap := make(map[string]*LFSUploadInfo, len(batchResp.Objects))
	for _, obj := range batchResp.Objects {
		info := &LFSUploadInfo{OID: obj.OID, Size: obj.Size}
		if obj.Actions != nil && obj.Actions.Upload != nil {
			info.UploadURL = obj.Actions.Upload.Href
			info.Header = obj.Actions.Upload.Header
		}
		uploadMap[obj.OID] = info
	}

	u.logger.Debug("LFS batch complete", "objects", len(uploadMap), "transfer", batchResp.Transfer)
	return uploadMap, nil
}

// UploadLFSFile transfers one file. The server picks the transfer: a
// chunk_size header means multipart, otherwise a single PUT.
func (u *Uploader) UploadLFSFile(ctx context.Context, info *LFSUploadInfo, path string) error {
	if info.UploadURL == "" {
		u.logger.Debug("LFS object already on server", "oid", info.OID)
		return nil
	}
	if chunkSize, ok := info.Header["chunk_size"]; ok {
		return u.uploadLFSMultipart(ctx, info, path, chunkSize)
	}
	return u.uploadLFSBasic(ctx, info, path)
}

func (u *Uploader) uploadLFSBasic(ctx context.Context, info *LFSUploadInfo, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	u.logger.Debug("Uploading LFS file", "oid", info.OID, "size", stat.Size())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, info.UploadURL, file)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = stat.Size()
	for key, value := range info.Header {
		if key != "chunk_size" && !isPartNumber(key) {
			req.Header.Set(key, value)
		}
	}

	resp, err := u.lfsClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("LFS upload returned status %d: %s", resp.StatusCode, string(body))
	}

	u.logger.Info("LFS file uploaded", "oid", info.OID, "size", stat.Size())
	return nil
}

// uploadLFSMultipart uploads the file in chunks to the presigned part URLs
// (header keys "1", "2", ...), then posts the collected ETags to the
// completion URL
func (u *Uploader) uploadLFSMultipart(ctx context.Context, info *LFSUploadInfo, path, chunkSizeStr string) error {
	chunkSize, err := strconv.ParseInt(chunkSizeStr, 10, 64)
	if err != nil || chunkSize <= 0 {
		return fmt.Errorf("invalid chunk_size %q", chunkSizeStr)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	partURLs := extractPartURLs(info.Header)
	if len(partURLs) == 0 {
		return fmt.Errorf("multipart upload response carries no part URLs")
	}

	u.logger.Debug("Uploading LFS file in parts",
		"oid", info.OID,
		"size", stat.Size(),
		"chunk_size", chunkSize,
		"parts", len(partURLs))

	type part struct {
		Number int
		ETag   string
	}
	parts := make([]part, 0, len(partURLs))

	for partNum, partURL := range partURLs {
		offset := int64(partNum-1) * chunkSize
		length := min(chunkSize, stat.Size()-offset)
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to part %d: %w", partNum, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, partURL, io.LimitReader(file, length))
		if err != nil {
			return fmt.Errorf("failed to build request for part %d: %w", partNum, err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.ContentLength = length

		resp, err := u.lfsClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to upload part %d: %w", partNum, err)
		}
		etag := resp.Header.Get("ETag")
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("part %d returned status %d: %s", partNum, resp.StatusCode, string(body))
		}
		resp.Body.Close()
		if etag == "" {
			return fmt.Errorf("part %d returned no ETag", partNum)
		}
		parts = append(parts, part{Number: partNum, ETag: etag})
		u.logger.Debug("Uploaded part", "part", partNum, "etag", etag)
	}

	// S3 completion requires ascending part order
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	completion := map[string]any{"oid": info.OID}
	completionParts := make([]map[string]any, len(parts))
	for i, p := range parts {
		completionParts[i] = map[string]any{"partNumber": p.Number, "etag": p.ETag}
	}
	completion["parts"] = completionParts

	payload, err := json.Marshal(completion)
	if err != nil {
		return fmt.Errorf("failed to marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, info.UploadURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/vnd.git-lfs+json")
	req.Header.Set("Accept", "application/vnd.git-lfs+json")

	resp, err := u.lfsClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("completion returned status %d: %s", resp.StatusCode, string(body))
	}

	u.logger.Info("LFS file uploaded", "oid", info.OID, "size", stat.Size(), "parts", len(parts))
	return nil
}

func extractPartURLs(header map[string]string) map[int]string {
	partURLs := make(map[int]string)
	for key, value := range header {
		if n, err := strconv.Atoi(key); err == nil && n > 0 {
			partURLs[n] = value
		}
	}
	return partURLs
}

func isPartNumber(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}

// PreuploadLFSWithRetry wraps PreuploadLFS with exponential backoff
func (u *Uploader) PreuploadLFSWithRetry(ctx context.Context, repoID string, files []LFSPointer, maxRetries int) (map[string]*LFSUploadInfo, error) {
	var lastErr error
	backoff := 2 * time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			u.logger.Warn("Retrying LFS preupload", "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		result, err := u.PreuploadLFS(ctx, repoID, files)
		if err == nil {
			return result, nil
		}
		lastErr = err
		u.logger.Warn("LFS preupload failed", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("preupload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// UploadLFSFileWithRetry wraps UploadLFSFile with exponential backoff
func (u *Uploader) UploadLFSFileWithRetry(ctx context.Context, info *LFSUploadInfo, path string) error {
	var lastErr error
	backoff := 2 * time.Second

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			u.logger.Warn("Retrying LFS upload",
				"file", path,
				"oid", info.OID,
				"attempt", attempt,
				"backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		err := u.UploadLFSFile(ctx, info, path)
		if err == nil {
			return nil
		}
		lastErr = err
		u.logger.Warn("LFS upload failed", "file", path, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("upload failed after %d attempts: %w", MaxRetries+1, lastErr)
}
