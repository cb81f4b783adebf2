// Package devname computes virtio block device target names.
//
// Names are a fixed prefix followed by a base-26 letter suffix in
// spreadsheet-column order: vda, vdb, ..., vdz, vdaa, vdab, ...
package devname

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExhausted is returned when every candidate name up to the
// configured device ceiling is already in use.
var ErrExhausted = errors.New("no free device name available")

// Format returns the name for 0-indexed position n under prefix.
// Format("vd", 0) == "vda", Format("vd", 26) == "vdaa".
func Format(prefix string, n int) string {
	var sb strings.Builder
	suffix := ""
	for {
		suffix = string(rune('a'+n%26)) + suffix
		n /= 26
		if n == 0 {
			break
		}
		n--
	}
	sb.WriteString(prefix)
	sb.WriteString(suffix)
	return sb.String()
}

// Parse returns the 0-indexed position of name under prefix, or an
// error if name is not prefix followed by a lowercase letter suffix.
func Parse(prefix, name string) (int, error) {
	suffix, ok := strings.CutPrefix(name, prefix)
	if !ok || suffix == "" {
		return 0, fmt.Errorf("device name %q does not match prefix %q", name, prefix)
	}
	n := 0
	for _, c := range suffix {
		if c < 'a' || c > 'z' {
			return 0, fmt.Errorf("device name %q has invalid suffix %q", name, suffix)
		}
		n = n*26 + int(c-'a') + 1
	}
	return n - 1, nil
}

// Next returns the first name in canonical order not present in used.
// The search considers at most max candidates; if all are taken it
// returns ErrExhausted.
//
// used should hold every target name currently visible on the domain,
// regardless of bus, so a virtio name never collides with an existing
// device of another type.
func Next(used map[string]struct{}, prefix string, max int) (string, error) {
	for i := 0; i < max; i++ {
		candidate := Format(prefix, i)
		if _, taken := used[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: all %d names under prefix %q are in use", ErrExhausted, max, prefix)
}
