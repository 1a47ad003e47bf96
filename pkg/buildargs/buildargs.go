// Package buildargs parses the positional `key=value` tokens that
// select what msibuild packages.
package buildargs

import (
	"regexp"
	"strings"

	version "github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

var (
	ErrUsage      = errors.New("invalid arguments")
	ErrBadVersion = errors.New("invalid version")
)

type Platform string

const (
	Win32 Platform = "win32"
	X64   Platform = "x64"
)

// PidPlatform is the value for the Package/@Platform attribute.
func (p Platform) PidPlatform() string {
	if p == X64 {
		return "x64"
	}
	return "Intel"
}

// DefaultDestination is the windows installer property for the
// program files folder matching the platform.
func (p Platform) DefaultDestination() string {
	if p == X64 {
		return "ProgramFiles64Folder"
	}
	return "ProgramFilesFolder"
}

// WixArch is the architecture name candle expects.
func (p Platform) WixArch() string {
	if p == X64 {
		return "x64"
	}
	return "x86"
}

// BuildDir is the name of the platform's directory in the build tree.
func (p Platform) BuildDir() string {
	if p == X64 {
		return "x64"
	}
	return "Win32"
}

type Args struct {
	Version  string
	Platform Platform
	Signed   bool
}

// Four dot separated decimal segments. Anything looser is rejected.
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

// Parse reads 2 or 3 `key=value` tokens. Recognized keys are
// version, platform, and signed. version is required; platform
// defaults to win32 and signed to no.
func Parse(tokens []string) (*Args, error) {
	if len(tokens) < 2 || len(tokens) > 3 {
		return nil, errors.Wrapf(ErrUsage, "expected 2 or 3 arguments, got %d", len(tokens))
	}

	args := &Args{
		Platform: Win32,
	}

	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return nil, errors.Wrapf(ErrUsage, "argument %q is not key=value", token)
		}

		if seen[key] {
			return nil, errors.Wrapf(ErrUsage, "argument %q given more than once", key)
		}
		seen[key] = true

		switch key {
		case "version":
			if err := ValidateVersion(value); err != nil {
				return nil, err
			}
			args.Version = value
		case "platform":
			switch Platform(value) {
			case Win32, X64:
				args.Platform = Platform(value)
			default:
				return nil, errors.Wrapf(ErrUsage, "unknown platform %q", value)
			}
		case "signed":
			switch value {
			case "yes":
				args.Signed = true
			case "no":
				args.Signed = false
			default:
				return nil, errors.Wrapf(ErrUsage, "signed must be yes or no, got %q", value)
			}
		default:
			return nil, errors.Wrapf(ErrUsage, "unknown argument %q", key)
		}
	}

	if args.Version == "" {
		return nil, errors.Wrap(ErrUsage, "missing version")
	}

	return args, nil
}

// ValidateVersion checks for a four part version that windows
// installer will accept as a ProductVersion. Major and minor must be
// below 256, build below 65536. The fourth field is ignored by MSI but
// still required here.
func ValidateVersion(v string) error {
	if !versionPattern.MatchString(v) {
		return errors.Wrapf(ErrBadVersion, "%q does not look like X.X.X.X", v)
	}

	parsed, err := version.NewVersion(v)
	if err != nil {
		return errors.Wrapf(ErrBadVersion, "parse %q: %s", v, err)
	}

	segments := parsed.Segments64()
	limits := []int64{256, 256, 65536}
	for i, limit := range limits {
		if segments[i] >= limit {
			return errors.Wrapf(ErrBadVersion, "%q: field %d must be below %d", v, i+1, limit)
		}
	}

	return nil
}
