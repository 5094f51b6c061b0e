package hfhub

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// CommitOperation is one file entry in a Hub commit
type CommitOperation struct {
	Operation string       `json:"operation"`
	Path      string       `json:"path"`
	Content   string       `json:"content,omitempty"`  // base64, embedded files only
	Encoding  string       `json:"encoding,omitempty"` // "base64" when Content is set
	LFSFile   *LFSFileInfo `json:"lfsFile,omitempty"`
}

// LFSFileInfo is the pointer data for a file stored through LFS
type LFSFileInfo struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// LFSThreshold is the size at which a file goes through LFS
const LFSThreshold = 10 * 1024 * 1024

// PrepareFileOperation builds the commit operation for one local file. Files
// under the LFS threshold are embedded base64-encoded; larger files become
// LFS pointers and must be uploaded separately.
func PrepareFileOperation(localPath, pathInRepo string) (*CommitOperation, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", localPath, err)
	}

	op := &CommitOperation{Operation: "add", Path: pathInRepo}

	if size >= LFSThreshold {
		op.LFSFile = &LFSFileInfo{
			SHA256: hex.EncodeToString(hasher.Sum(nil)),
			Size:   size,
		}
		return op, nil
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	op.Content = base64.StdEncoding.EncodeToString(data)
	op.Encoding = "base64"
	return op, nil
}
