package store

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/zrma/go-wakeword/mfcc"
)

const maxLabelLength = 64

// SampleFile returns the feature file name for a labeled sample.
// Both parts are reduced to filesystem-safe characters.
func SampleFile(label, name string) string {
	return SafeName(label) + "_" + SafeName(strings.TrimSuffix(name, pathExt(name))) + sampleExt
}

// ValidateLabel reports whether label can be stored.
func ValidateLabel(label string) error {
	switch {
	case strings.TrimSpace(label) == "":
		return errors.Wrap(mfcc.ErrInput, "empty label")
	case !utf8.ValidString(label):
		return errors.Wrap(mfcc.ErrInput, "label is not valid UTF-8")
	case utf8.RuneCountInString(label) > maxLabelLength:
		return errors.Wrapf(mfcc.ErrInput, "label is longer than %d characters", maxLabelLength)
	case strings.IndexFunc(label, unicode.IsControl) >= 0:
		return errors.Wrap(mfcc.ErrInput, "label contains control characters")
	case SafeName(label) == "":
		return errors.Wrapf(mfcc.ErrInput, "label %q has no filename-safe characters", label)
	}
	return nil
}

// SafeName reduces s to ASCII letters, digits, '-', '.' and '_'. Whitespace
// becomes '_'; leading and trailing dots and underscores are dropped.
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		case r == '_' || unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

func pathExt(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || strings.ContainsAny(name[i:], "/\\") {
		return ""
	}
	return name[i:]
}
