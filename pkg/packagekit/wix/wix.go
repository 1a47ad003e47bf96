package wix

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/kolide/msibuild/pkg/cmdwrapper"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

type Toolset struct {
	wixPath        string            // Where is wix installed
	buildDir       string            // The wix tools want to work in a build dir.
	basePath       string            // Where light resolves relative File sources from
	msArch         string            // What's the microsoft archtecture name?
	dockerImage    string            // If in docker, what image?
	skipValidation bool              // Skip light validation. Seems to be needed for running in 32bit wine environments.
	extensions     []string          // wix extensions for light, eg: WixUIExtension
	defines        map[string]string // candle preprocessor variables

	runnerOpts []cmdwrapper.Option
	runner     *cmdwrapper.Runner
}

type WixOpt func(*Toolset)

func As64bit() WixOpt {
	return func(wo *Toolset) {
		wo.msArch = "x64"
	}
}

func As32bit() WixOpt {
	return func(wo *Toolset) {
		wo.msArch = "x86"
	}
}

// WithArch sets the candle architecture by name (x86, x64)
func WithArch(arch string) WixOpt {
	return func(wo *Toolset) {
		wo.msArch = arch
	}
}

// If you're running this in a virtual win environment, you probably
// need to skip validation. LGHT0216 is a common error.
func SkipValidation() WixOpt {
	return func(wo *Toolset) {
		wo.skipValidation = true
	}
}

func WithWix(path string) WixOpt {
	return func(wo *Toolset) {
		wo.wixPath = path
	}
}

func WithBuildDir(path string) WixOpt {
	return func(wo *Toolset) {
		wo.buildDir = path
	}
}

// WithBasePath passes -b to light, so relative File sources in the
// template resolve under path rather than the build dir.
func WithBasePath(path string) WixOpt {
	return func(wo *Toolset) {
		wo.basePath = path
	}
}

func WithDocker(image string) WixOpt {
	return func(wo *Toolset) {
		wo.dockerImage = image
	}
}

func WithExtension(ext string) WixOpt {
	return func(wo *Toolset) {
		wo.extensions = append(wo.extensions, ext)
	}
}

// WithDefine passes -dname=value to candle.
func WithDefine(name, value string) WixOpt {
	return func(wo *Toolset) {
		wo.defines[name] = value
	}
}

// WithRunnerOpts configures the process runner the tools are exec'ed
// through.
func WithRunnerOpts(opts ...cmdwrapper.Option) WixOpt {
	return func(wo *Toolset) {
		wo.runnerOpts = append(wo.runnerOpts, opts...)
	}
}

// New returns a Toolset for running candle and light. Relative paths
// given to its methods are relative to the build dir.
func New(wixOpts ...WixOpt) *Toolset {
	wo := &Toolset{
		wixPath: `C:\wix311`,
		msArch:  "x86",
		defines: make(map[string]string),
	}

	for _, opt := range wixOpts {
		opt(wo)
	}

	wo.buildDir = absPath(wo.buildDir)
	if wo.basePath != "" {
		wo.basePath = absPath(wo.basePath)
	}

	wo.runner = cmdwrapper.New(append([]cmdwrapper.Option{cmdwrapper.WithDir(wo.buildDir)}, wo.runnerOpts...)...)

	return wo
}

// Candle invokes wix's candle command. This is the wix compiler, It
// preprocesses and compiles WiX source files into object files
// (.wixobj).
func (wo *Toolset) Candle(ctx context.Context, source, object string) error {
	ctx, span := trace.StartSpan(ctx, "wix.Candle")
	defer span.End()

	args := []string{
		"-nologo",
		"-arch", wo.msArch,
	}

	names := make([]string, 0, len(wo.defines))
	for name := range wo.defines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, fmt.Sprintf("-d%s=%s", name, wo.defines[name]))
	}

	args = append(args, "-out", object, source)

	if _, err := wo.execOut(ctx, "candle.exe", args...); err != nil {
		return errors.Wrap(err, "running candle")
	}
	return nil
}

// Light invokes wix's light command. This links and binds one or more
// .wixobj files and creates a Windows Installer database (.msi or
// .msm). See http://wixtoolset.org/documentation/manual/v3/overview/light.html for options
func (wo *Toolset) Light(ctx context.Context, object, msi string) error {
	ctx, span := trace.StartSpan(ctx, "wix.Light")
	defer span.End()

	args := []string{"-nologo"}

	for _, ext := range wo.extensions {
		args = append(args, "-ext", ext)
	}

	if wo.basePath != "" {
		args = append(args, "-b", wo.basePath)
	}

	args = append(args, "-out", msi, object)

	if wo.skipValidation {
		args = append(args, "-sval")
	}

	if _, err := wo.execOut(ctx, "light.exe", args...); err != nil {
		return errors.Wrap(err, "running light")
	}
	return nil
}

func (wo *Toolset) execOut(ctx context.Context, tool string, args ...string) (string, error) {
	argv0 := filepath.Join(wo.wixPath, tool)

	if wo.dockerImage != "" {
		dockerArgs := []string{
			"run",
			"--entrypoint", "",
			"-v", fmt.Sprintf("%s:%s", wo.buildDir, wo.buildDir),
		}
		if wo.basePath != "" && wo.basePath != wo.buildDir {
			dockerArgs = append(dockerArgs, "-v", fmt.Sprintf("%s:%s", wo.basePath, wo.basePath))
		}
		dockerArgs = append(dockerArgs,
			"-w", wo.buildDir,
			wo.dockerImage,
			"wine",
			argv0,
		)
		args = append(dockerArgs, args...)
		argv0 = "docker"
	}

	return wo.runner.Run(ctx, argv0, args...)
}

// absPath resolves p against the working directory. docker only
// accepts absolute mount points.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
