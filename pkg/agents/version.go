package agents

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version bump classes accepted by IncrementVersion and the store's
// update operation.
const (
	BumpPatch = "patch"
	BumpMinor = "minor"
	BumpMajor = "major"
)

// Plain MAJOR.MINOR.PATCH only; no pre-release or build metadata.
var semverRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// ParseVersion splits a semantic version string into its numeric
// components. Surrounding whitespace is tolerated, nothing else.
func ParseVersion(version string) (major, minor, patch int, err error) {
	m := semverRe.FindStringSubmatch(strings.TrimSpace(version))
	if m == nil {
		return 0, 0, 0, errors.Wrapf(ErrInvalidVersion, "%q is not a MAJOR.MINOR.PATCH version", version)
	}

	parts := [3]int{}
	for i, field := range m[1:] {
		n, convErr := strconv.Atoi(field)
		if convErr != nil {
			return 0, 0, 0, errors.Wrapf(ErrInvalidVersion, "%q has a non-numeric component", version)
		}
		parts[i] = n
	}

	return parts[0], parts[1], parts[2], nil
}

// IncrementVersion returns the next version after applying a bump class.
func IncrementVersion(version, bump string) (string, error) {
	major, minor, patch, err := ParseVersion(version)
	if err != nil {
		return "", err
	}

	switch bump {
	case BumpPatch:
		patch++
	case BumpMinor:
		minor++
		patch = 0
	case BumpMajor:
		major++
		minor = 0
		patch = 0
	default:
		return "", errors.Wrapf(ErrInvalidVersion, "unknown bump %q (want patch, minor, or major)", bump)
	}

	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// CompareVersions orders two versions numerically, returning -1, 0, or 1.
func CompareVersions(a, b string) (int, error) {
	aMajor, aMinor, aPatch, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	bMajor, bMinor, bPatch, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}

	left := [3]int{aMajor, aMinor, aPatch}
	right := [3]int{bMajor, bMinor, bPatch}
	for i := range left {
		if left[i] < right[i] {
			return -1, nil
		}
		if left[i] > right[i] {
			return 1, nil
		}
	}
	return 0, nil
}
