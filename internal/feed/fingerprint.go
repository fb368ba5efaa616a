package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Fingerprint returns the hex SHA-256 of every known table present in dir.
// Missing tables are omitted.
func Fingerprint(dir string) (map[TableName]string, error) {
	sums := make(map[TableName]string)
	for _, name := range AllTables {
		sum, err := hashFile(filepath.Join(dir, string(name)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fingerprinting %s: %w", name, err)
		}
		sums[name] = sum
	}
	return sums, nil
}

// ChangedTables compares two fingerprint sets and returns the sorted names
// whose hash differs, including tables that appeared or disappeared.
func ChangedTables(previous, current map[TableName]string) []string {
	var changed []string
	for _, name := range AllTables {
		prev, hadPrev := previous[name]
		cur, hasCur := current[name]
		if hadPrev != hasCur || prev != cur {
			changed = append(changed, string(name))
		}
	}
	sort.Strings(changed)
	return changed
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
