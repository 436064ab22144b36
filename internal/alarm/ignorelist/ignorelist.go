// Package ignorelist loads the exception class names whose alarms are muted.
package ignorelist

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// List is an immutable set of exception names.
type List struct {
	entries []string
	index   map[string]struct{}
}

// New builds a list from names; blank names are skipped.
func New(names ...string) *List {
	l := &List{index: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := l.index[n]; ok {
			continue
		}
		l.index[n] = struct{}{}
		l.entries = append(l.entries, n)
	}
	return l
}

// Load reads one exception name per line. Blank lines and lines starting with
// '#' are skipped. A missing file is not an error: it is logged and an empty
// list is returned.
func Load(path string) (*List, error) {
	if strings.TrimSpace(path) == "" {
		return New(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("ignore exceptions file not found, no exception is ignored")
			return New(), nil
		}
		return nil, fmt.Errorf("open ignore exceptions file %s: %w", path, err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore exceptions file %s: %w", path, err)
	}

	l := New(names...)
	log.Info().Str("path", path).Strs("exceptions", l.entries).Msg("ignore exceptions loaded")
	return l, nil
}

// Contains reports whether name is ignored. A nil list ignores nothing.
func (l *List) Contains(name string) bool {
	if l == nil || name == "" {
		return false
	}
	_, ok := l.index[name]
	return ok
}

// Entries returns a copy of the names in file order.
func (l *List) Entries() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}
