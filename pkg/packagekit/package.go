package packagekit

import (
	"fmt"

	"github.com/kolide/msibuild/pkg/buildargs"
	"github.com/kolide/msibuild/pkg/cmdwrapper"
	"github.com/spf13/afero"
)

// PackageOptions is the superset of all msi packaging options.
type PackageOptions struct {
	Name              string   // What's the name for this package (eg: Luna)
	Root              string   // root of the build tree
	Dirs              []string // directories that must exist under Root
	OutputDir         string   // where the xml, wixobj, msi, and md5 files land
	TemplatePath      string   // installer template. Empty means the built in one
	DestinationPrefix string   // install folder name, before the version

	WixPath           string   // path to wix installation
	WixSkipValidation bool     // pass -sval to light
	WixExtensions     []string // extensions for light, eg: WixUIExtension
	WixDockerImage    string   // run wix under wine in this docker image

	SigntoolPath         string   // path to signtool.exe
	SigntoolArgs         []string // Extra args for signtool. May be needed for finding a key
	SigntoolSubject      string   // certificate subject name, passed as /n
	SigntoolTimestampURL string   // RFC 3161 timestamp server
	SigntoolSkipVerify   bool     // don't run signtool verify after signing
	ChecksumTool         string   // external md5 utility. Empty means compute in process

	Fs         afero.Fs            // defaults to the OS filesystem
	RunnerOpts []cmdwrapper.Option // applied to every external tool
	NewGuid    func() string       // product guid generator
}

// Result lists the files a successful build left behind.
type Result struct {
	XMLPath      string
	MSIPath      string
	ChecksumPath string // empty unless signed
}

// XMLName is the patched template, eg: Luna-win32.xml
func XMLName(product string, platform buildargs.Platform) string {
	return fmt.Sprintf("%s-%s.xml", product, platform)
}

// ObjectName is candle's output, eg: Luna-1.2.3.4-win32.wixobj
func ObjectName(product, version string, platform buildargs.Platform) string {
	return fmt.Sprintf("%s-%s-%s.wixobj", product, version, platform)
}

// MSIName is the installer, eg: Luna-1.2.3.4-win32.msi
func MSIName(product, version string, platform buildargs.Platform) string {
	return fmt.Sprintf("%s-%s-%s.msi", product, version, platform)
}

// ProductDestination is the folder the product installs into.
func ProductDestination(prefix, version string) string {
	return prefix + version
}
