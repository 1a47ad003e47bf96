package internal

import (
	"embed"

	"github.com/pkg/errors"
)

//go:embed assets
var assets embed.FS

// InstallWXS returns the built in installer template.
func InstallWXS() ([]byte, error) {
	data, err := assets.ReadFile("assets/installer.wxs")
	if err != nil {
		return nil, errors.Wrap(err, "reading embedded installer.wxs")
	}
	return data, nil
}
