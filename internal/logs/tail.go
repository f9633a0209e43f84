package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// PointerName is the stable name the daemon links to its active log file.
const PointerName = "stagehand.log"

// ErrNoLog is returned when the daemon has not written a log yet.
var ErrNoLog = errors.New("no daemon log found")

// Current resolves the stagehand.log pointer in logDir to the file it
// names. A hard-linked pointer resolves to itself.
func Current(logDir string) (string, error) {
	pointer := filepath.Join(logDir, PointerName)
	resolved, err := filepath.EvalSymlinks(pointer)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNoLog, logDir)
		}
		return "", fmt.Errorf("resolve log pointer: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("log path %q is a directory", resolved)
	}
	return resolved, nil
}

// Last returns up to limit trailing lines of path and the offset just past
// them. limit <= 0 returns no lines and the current size.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	offset, err := scanLines(file, func(line string) {
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := range lines {
		lines[i] = ring[(start+i)%limit]
	}
	return lines, offset, nil
}

// FollowOptions tunes Follow.
type FollowOptions struct {
	// Offset is where to start reading the current file.
	Offset int64
	// Poll is how often to check for new lines. Defaults to 250ms.
	Poll time.Duration
}

// Follow writes lines appended to the current log until ctx ends. When the
// pointer switches to another file, streaming continues from that file's
// start. A truncated file is re-read from the beginning.
func Follow(ctx context.Context, logDir string, w io.Writer, opts FollowOptions) error {
	poll := opts.Poll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	path, err := Current(logDir)
	if err != nil {
		return err
	}
	offset := opts.Offset

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		next, err := copyFrom(path, offset, w)
		if err != nil {
			return err
		}
		offset = next

		if current, err := Current(logDir); err == nil && current != path {
			// Drain what the old file gained before switching.
			if _, err := copyFrom(path, offset, w); err != nil {
				return err
			}
			path, offset = current, 0
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func copyFrom(path string, offset int64, w io.Writer) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	var writeErr error
	read, err := scanLines(file, func(line string) {
		if writeErr == nil {
			_, writeErr = fmt.Fprintln(w, line)
		}
	})
	if err != nil {
		return offset, err
	}
	if writeErr != nil {
		return offset, fmt.Errorf("write log line: %w", writeErr)
	}
	return offset + read, nil
}

// scanLines feeds complete lines to fn and reports how many bytes they
// covered. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			fn(trimEOL(line))
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

func trimEOL(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
