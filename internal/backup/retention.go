package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Info describes one backup file in a listing.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source,omitempty"`
	NodeCount int       `json:"node_count"`
	Valid     bool      `json:"valid"` // header parsed
}

// Retention bounds the backups kept in a directory. A backup survives when
// any limit that is set would keep it. Zero fields are unset, and a zero
// Retention keeps everything.
type Retention struct {
	// MaxCount keeps the newest N backups.
	MaxCount int
	// MaxAge keeps backups younger than this.
	MaxAge time.Duration
	// MaxTotalBytes keeps the newest backups whose sizes sum to at most
	// this. The newest backup always counts as within the limit.
	MaxTotalBytes int64
}

// IsZero reports whether no limit is set.
func (r Retention) IsZero() bool {
	return r.MaxCount <= 0 && r.MaxAge <= 0 && r.MaxTotalBytes <= 0
}

// Keep returns the backups r retains at time now, preserving input order.
// backups must be sorted newest first, as ListBackups returns them.
func (r Retention) Keep(backups []Info, now time.Time) []Info {
	if r.IsZero() {
		return backups
	}
	cutoff := now.Add(-r.MaxAge)
	var (
		kept   []Info
		total  int64
		inSize = r.MaxTotalBytes > 0
	)
	for i, b := range backups {
		byCount := r.MaxCount > 0 && i < r.MaxCount
		byAge := r.MaxAge > 0 && b.CreatedAt.After(cutoff)
		bySize := false
		if inSize {
			if i > 0 && total+b.Size > r.MaxTotalBytes {
				inSize = false
			} else {
				total += b.Size
				bySize = true
			}
		}
		if byCount || byAge || bySize {
			kept = append(kept, b)
		}
	}
	return kept
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

// ListBackups returns the backups in dir, newest first. Files whose header
// cannot be read are listed with Valid unset and their mtime as CreatedAt.
// A missing directory yields an empty list.
func ListBackups(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []Info
	for _, e := range entries {
		if e.IsDir() || !isBackupFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(info.Path); err == nil {
			info.CreatedAt = h.CreatedAt
			info.Source = h.Source
			info.NodeCount = h.NodeCount
			info.Valid = true
		}
		backups = append(backups, info)
	}

	// Names start with a sortable UTC timestamp.
	slices.SortFunc(backups, func(a, b Info) int {
		return strings.Compare(filepath.Base(b.Path), filepath.Base(a.Path))
	})
	return backups, nil
}

// Prune removes the backups in dir that r does not keep at time now and
// returns the removed paths.
func Prune(dir string, r Retention, now time.Time) ([]string, error) {
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(backups))
	for _, b := range r.Keep(backups, now) {
		keep[b.Path] = struct{}{}
	}

	var removed []string
	for _, b := range backups {
		if _, ok := keep[b.Path]; ok {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("removing %s: %w", filepath.Base(b.Path), err)
		}
		removed = append(removed, b.Path)
	}
	return removed, nil
}

var (
	dayUnits  = map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour}
	sizeUnits = map[string]int64{"B": 1, "KB": 1 << 10, "MB": 1 << 20, "GB": 1 << 30}
)

// splitUnit splits "30d" into 30 and "d". The number must be a
// non-negative integer and the unit must be present.
func splitUnit(s string) (int64, string, bool) {
	i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i <= 0 {
		return 0, "", false
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return n, s[i:], true
}

// ParseDuration accepts Go durations ("720h") and whole days or weeks
// ("30d", "2w").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	n, unit, ok := splitUnit(s)
	if !ok {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	mult, ok := dayUnits[unit]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, unit)
	}
	return time.Duration(n) * mult, nil
}

// ParseSize parses "500KB", "100MB", "1GB" or a plain byte count with a
// "B" suffix.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	n, unit, ok := splitUnit(s)
	if !ok {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	mult, ok := sizeUnits[strings.ToUpper(unit)]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: want a B, KB, MB or GB suffix", s)
	}
	return n * mult, nil
}
