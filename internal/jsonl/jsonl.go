package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	initialBufSize = 64 * 1024
	// Paragraphs plus reasoning traces can run long; lines beyond this abort the read.
	maxLineSize = 20 * 1024 * 1024
)

// Reader streams newline-delimited JSON lines from an underlying reader
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a reader over r
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialBufSize), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next non-empty line as an owned copy, or false at end of input.
// Callers must check Err after the final Next.
func (r *Reader) Next() ([]byte, bool) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		line := make([]byte, len(raw))
		copy(line, raw)
		return line, true
	}
	return nil, false
}

// Err returns the first I/O error hit by the scanner
func (r *Reader) Err() error {
	if err := r.scanner.Err(); err != nil {
		return fmt.Errorf("failed to read line %d: %w", r.line+1, err)
	}
	return nil
}

// Line returns the number of the most recently returned line (1-based)
func (r *Reader) Line() int {
	return r.line
}

// ReadAll returns every non-empty line of the file as owned byte slices
func ReadAll(path string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var lines [][]byte
	reader := NewReader(file)
	for {
		line, ok := reader.Next()
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// CountLines returns the number of non-empty lines in the file, or 0 when it
// does not exist. Used to pick up an interrupted run where it left off.
func CountLines(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := NewReader(file)
	count := 0
	for {
		if _, ok := reader.Next(); !ok {
			break
		}
		count++
	}
	if err := reader.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// Writer handles thread-safe buffered writing of JSON lines
type Writer struct {
	file   *os.File
	buf    *bufio.Writer
	mu     sync.Mutex
	count  int
	closed bool
}

// Create opens a writer that truncates any existing file at path
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &Writer{file: file, buf: bufio.NewWriter(file)}, nil
}

// Append opens a writer that appends to the file at path, creating it if needed
func Append(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &Writer{file: file, buf: bufio.NewWriter(file)}, nil
}

// Write marshals record and appends it as one line
func (w *Writer) Write(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return w.WriteLine(data)
}

// WriteLine appends an already-encoded line
func (w *Writer) WriteLine(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of lines written so far
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes buffers and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", w.file.Name(), err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", w.file.Name(), err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", w.file.Name(), err)
	}
	return nil
}
