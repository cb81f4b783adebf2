package virsh

import (
	"fmt"
	"regexp"
	"strings"
)

// Allow-list patterns for values interpolated into remote commands.
// Everything that reaches the remote shell passes one of these first;
// there is no escaping fallback.
var (
	nameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	pathRE = regexp.MustCompile(`^/[A-Za-z0-9_./-]+$`)
)

// ValidateName checks a domain, pool, or volume name.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidArgument, kind)
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: %s must be 255 characters or less", ErrInvalidArgument, kind)
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%w: %s %q must contain only alphanumeric characters, dots, hyphens, and underscores", ErrInvalidArgument, kind, name)
	}
	return nil
}

// ValidateTargetDevice checks a block device target name: the
// configured device prefix followed by lowercase letters, e.g. "vdb"
// under prefix "vd".
func ValidateTargetDevice(prefix, dev string) error {
	suffix, ok := strings.CutPrefix(dev, prefix)
	if !ok || suffix == "" {
		return fmt.Errorf("%w: target device %q must be %q followed by lowercase letters", ErrInvalidArgument, dev, prefix)
	}
	for _, c := range suffix {
		if c < 'a' || c > 'z' {
			return fmt.Errorf("%w: target device %q must be %q followed by lowercase letters", ErrInvalidArgument, dev, prefix)
		}
	}
	return nil
}

// ValidatePath checks an absolute host-side file path.
func ValidatePath(path string) error {
	if !pathRE.MatchString(path) {
		return fmt.Errorf("%w: path %q must be absolute and contain no special characters", ErrInvalidArgument, path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%w: path %q must not contain parent references", ErrInvalidArgument, path)
	}
	return nil
}

// ValidateDiskImagePath checks an attachable disk image path.
func ValidateDiskImagePath(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if !strings.HasSuffix(path, ".qcow2") {
		return fmt.Errorf("%w: disk image path %q must end with .qcow2", ErrInvalidArgument, path)
	}
	return nil
}
