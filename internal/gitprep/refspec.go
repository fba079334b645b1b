package gitprep

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRefSpec is wrapped by every ref-spec validation failure.
var ErrInvalidRefSpec = errors.New("invalid ref-spec")

// ValidateRefSpec checks a fetch ref-spec of the form [+]<src>[:<dst>].
// Both sides must be valid ref patterns and must agree on wildcard use.
func ValidateRefSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRefSpec)
	}
	body := strings.TrimPrefix(spec, "+")
	if strings.HasPrefix(body, "^") {
		return fmt.Errorf("%w %q: negative ref-specs are not supported", ErrInvalidRefSpec, spec)
	}

	src, dst, hasDst := strings.Cut(body, ":")
	if strings.Contains(dst, ":") {
		return fmt.Errorf("%w %q: more than one ':'", ErrInvalidRefSpec, spec)
	}
	if src == "" {
		return fmt.Errorf("%w %q: empty source", ErrInvalidRefSpec, spec)
	}
	if hasDst && dst == "" {
		return fmt.Errorf("%w %q: empty destination", ErrInvalidRefSpec, spec)
	}

	if err := validateRefPattern(src); err != nil {
		return fmt.Errorf("%w %q: source: %w", ErrInvalidRefSpec, spec, err)
	}
	if !hasDst {
		return nil
	}
	if err := validateRefPattern(dst); err != nil {
		return fmt.Errorf("%w %q: destination: %w", ErrInvalidRefSpec, spec, err)
	}
	if strings.Contains(src, "*") != strings.Contains(dst, "*") {
		return fmt.Errorf("%w %q: wildcard must appear on both sides", ErrInvalidRefSpec, spec)
	}
	return nil
}

// validateRefPattern applies the subset of git-check-ref-format rules that
// matter for fetch patterns. A single '*' is allowed.
func validateRefPattern(ref string) error {
	switch {
	case strings.Count(ref, "*") > 1:
		return errors.New("more than one '*'")
	case strings.Contains(ref, ".."):
		return errors.New("contains '..'")
	case strings.Contains(ref, "//"):
		return errors.New("contains '//'")
	case strings.Contains(ref, "@{"):
		return errors.New("contains '@{'")
	case strings.HasPrefix(ref, "/"), strings.HasSuffix(ref, "/"):
		return errors.New("leading or trailing '/'")
	case strings.HasSuffix(ref, ".lock"), strings.HasSuffix(ref, "."):
		return errors.New("ends with '.lock' or '.'")
	}
	for _, r := range ref {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(" ~^?[\\", r) {
			return fmt.Errorf("contains forbidden character %q", r)
		}
	}
	return nil
}
