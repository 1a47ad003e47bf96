// Package layout checks that the build tree holds every output
// directory the installer template references.
package layout

import (
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var ErrMissingDirectory = errors.New("required build directory missing")

// DefaultDirs are the Debug and Release output trees of both platform
// builds, relative to the build root.
var DefaultDirs = []string{
	"Bin/Win32/Debug/Luna",
	"Bin/Win32/Debug/Engine",
	"Bin/Win32/Debug/Foundation",
	"Bin/Win32/Debug/Pipeline",
	"Bin/Win32/Debug/Platform",
	"Bin/Win32/Debug/Rendering",
	"Bin/Win32/Release/Luna",
	"Bin/Win32/Release/Engine",
	"Bin/Win32/Release/Foundation",
	"Bin/Win32/Release/Pipeline",
	"Bin/Win32/Release/Platform",
	"Bin/Win32/Release/Rendering",
	"Bin/x64/Debug/Luna",
	"Bin/x64/Debug/Engine",
	"Bin/x64/Debug/Foundation",
	"Bin/x64/Debug/Pipeline",
	"Bin/x64/Debug/Platform",
	"Bin/x64/Debug/Rendering",
	"Bin/x64/Release/Luna",
	"Bin/x64/Release/Engine",
	"Bin/x64/Release/Foundation",
	"Bin/x64/Release/Pipeline",
	"Bin/x64/Release/Platform",
	"Bin/x64/Release/Rendering",
}

type layoutFile struct {
	Dirs []string `json:"dirs"`
}

// Load reads a yaml file of the form
//
//	dirs:
//	  - Bin/Win32/Release/Luna
//
// and returns the listed directories.
func Load(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading layout file %s", path)
	}

	var lf layoutFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrapf(err, "parsing layout file %s", path)
	}

	if len(lf.Dirs) == 0 {
		return nil, errors.Errorf("layout file %s lists no dirs", path)
	}

	return lf.Dirs, nil
}

// Check stats each of dirs under root, and returns on the first one
// that is missing or is not a directory.
func Check(fs afero.Fs, root string, dirs []string) error {
	for _, d := range dirs {
		p := filepath.Join(root, filepath.FromSlash(d))

		stat, err := fs.Stat(p)
		switch {
		case os.IsNotExist(err):
			return errors.Wrap(ErrMissingDirectory, d)
		case err != nil:
			return errors.Wrapf(err, "stat %s", p)
		case !stat.IsDir():
			return errors.Wrapf(ErrMissingDirectory, "%s isn't a directory", d)
		}
	}

	return nil
}
