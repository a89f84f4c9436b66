package hash40

import (
	"bufio"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// LabelStore holds the reverse map from Hash40 to the human-readable path it
// was derived from. Labels are loaded once at open and live as long as the
// store; queries hand out borrowed strings from this map rather than
// allocating a copy per call.
type LabelStore struct {
	mu    sync.RWMutex
	names map[Hash40]string
}

// NewLabelStore returns an empty store ready for Load calls.
func NewLabelStore() *LabelStore {
	return &LabelStore{names: make(map[Hash40]string)}
}

// Load reads a label file, which is either TSV (`hex-hash\tpath`, ten hex
// digits, upper or lower case) or plain-line (`path` per line). Lines that
// do not parse are skipped silently, per the archive spec's label-ingestion
// policy. Paths matching any of excludeGlobs (doublestar patterns) are
// skipped as well, logged at debug level.
func (s *LabelStore) Load(r io.Reader, excludeGlobs []string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var h Hash40
		var path string
		if tab := strings.IndexByte(line, '\t'); tab >= 0 {
			hex, rest := line[:tab], line[tab+1:]
			v, err := strconv.ParseUint(hex, 16, 40)
			if err != nil {
				continue
			}
			h, path = Hash40(v), rest
		} else {
			path = line
			h = New(path)
		}

		if path == "" {
			continue
		}
		if matchesAny(excludeGlobs, path) {
			slog.Debug("labelExcluded", "path", path)
			continue
		}

		s.add(h, path)
	}
	return scanner.Err()
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

func (s *LabelStore) add(h Hash40, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.names[h]; ok && existing != path {
		slog.Warn("hash40Collision", "hash", h, "kept", existing, "dropped", path)
		return
	}
	s.names[h] = path
}

// AddDerived records a path that was not present in the external label file
// but was derived from one that was (e.g. a parent directory of a labeled
// file). First writer wins, matching the archive's general duplicate policy.
func (s *LabelStore) AddDerived(h Hash40, path string) {
	s.add(h, path)
}

// Get resolves a hash-40 to its label, if known.
func (s *LabelStore) Get(h Hash40) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.names[h]
	return p, ok
}

// Len reports the number of labels currently known.
func (s *LabelStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}
