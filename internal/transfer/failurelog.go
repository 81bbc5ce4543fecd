package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FailureLogName is the failure log file, created next to the creator folders
const FailureLogName = "errors.log"

// FailureLog records "{url} - {status}" lines for manual retry. Each URL is
// written once, across runs, so the file does not grow on repeated failures.
type FailureLog struct {
	mu   sync.Mutex
	path string
	seen map[string]bool
}

// OpenFailureLog loads the URLs already recorded at path. The file itself is
// created on the first Record.
func OpenFailureLog(path string) (*FailureLog, error) {
	l := &FailureLog{path: path, seen: make(map[string]bool)}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if u := parseFailureLine(scanner.Text()); u != "" {
			l.seen[u] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read failure log: %w", err)
	}
	return l, nil
}

// Path returns the log location
func (l *FailureLog) Path() string { return l.path }

// Record appends url with its status unless url is already logged.
// A nil log records nothing.
func (l *FailureLog) Record(url string, status int) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[url] {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create failure log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s - %d\n", url, status); err != nil {
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	l.seen[url] = true
	return nil
}

func parseFailureLine(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.LastIndex(line, " - "); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
