package wiki

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/schollz/progressbar/v3"
)

// DumpURL returns the latest-articles dump location for a language code
func DumpURL(language string) string {
	return fmt.Sprintf("https://dumps.wikimedia.org/%swiki/latest/%swiki-latest-pages-articles.xml.bz2",
		language, language)
}

// NeedsDownload reports whether the dump file is absent or empty
func NeedsDownload(path string) bool {
	info, err := os.Stat(path)
	return err != nil || info.Size() == 0
}

// DownloadDump streams the compressed dump for language to path. The download
// lands in a .partial file first so an interrupted run never leaves a
// truncated dump behind.
func DownloadDump(ctx context.Context, language, path string, logger *slog.Logger) error {
	return downloadFile(ctx, DumpURL(language), path, logger)
}

func downloadFile(ctx context.Context, url, path string, logger *slog.Logger) error {
	logger.Info("Downloading Wikipedia dump", "url", url, "path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build dump request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download dump: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dump download returned status %d", resp.StatusCode)
	}

	partial := path + ".partial"
	file, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", partial, err)
	}

	bar := progressbar.DefaultBytes(resp.ContentLength, "Downloading dump")
	if _, err := io.Copy(io.MultiWriter(file, bar), resp.Body); err != nil {
		file.Close()
		os.Remove(partial)
		return fmt.Errorf("failed to write dump: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close dump file: %w", err)
	}
	if err := os.Rename(partial, path); err != nil {
		return fmt.Errorf("failed to move dump into place: %w", err)
	}

	logger.Info("Download complete", "path", path)
	return nil
}
