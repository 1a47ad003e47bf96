package packagekit

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/msibuild/pkg/buildargs"
	"github.com/kolide/msibuild/pkg/contexts/ctxlog"
	"github.com/kolide/msibuild/pkg/layout"
	"github.com/kolide/msibuild/pkg/packagekit/authenticode"
	"github.com/kolide/msibuild/pkg/packagekit/checksum"
	"github.com/kolide/msibuild/pkg/packagekit/internal"
	"github.com/kolide/msibuild/pkg/packagekit/wix"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.opencensus.io/trace"
)

// PackageMSI builds an msi from the installer template. The build tree
// is checked first, so a bad layout fails before any file is read or
// written. It then renders the template, runs candle and light, and
// removes the wixobj. Signed builds are then signed and checksummed.
func PackageMSI(ctx context.Context, args *buildargs.Args, po *PackageOptions) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "packagekit.PackageMSI")
	defer span.End()

	logger := log.With(ctxlog.FromContext(ctx), "method", "packagekit.PackageMSI")

	fs := po.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dirs := po.Dirs
	if dirs == nil {
		dirs = layout.DefaultDirs
	}

	root := po.Root
	if root == "" {
		root = "."
	}

	if err := layout.Check(fs, root, dirs); err != nil {
		return nil, errors.Wrap(err, "checking build layout")
	}

	xmlName := XMLName(po.Name, args.Platform)
	objName := ObjectName(po.Name, args.Version, args.Platform)
	msiName := MSIName(po.Name, args.Version, args.Platform)

	result := &Result{
		XMLPath: filepath.Join(po.OutputDir, xmlName),
		MSIPath: filepath.Join(po.OutputDir, msiName),
	}

	if err := renderTemplate(ctx, fs, args, po, result.XMLPath); err != nil {
		return nil, err
	}

	level.Info(logger).Log("msg", "wrote installer xml", "path", result.XMLPath)

	wixOpts := []wix.WixOpt{
		wix.WithBuildDir(po.OutputDir),
		wix.WithBasePath(root), // File sources are checked and bound under the same root
		wix.WithArch(args.Platform.WixArch()),
		wix.WithDefine("Platform", args.Platform.BuildDir()),
		wix.WithRunnerOpts(po.RunnerOpts...),
	}
	if po.WixPath != "" {
		wixOpts = append(wixOpts, wix.WithWix(po.WixPath))
	}
	if po.WixSkipValidation {
		wixOpts = append(wixOpts, wix.SkipValidation())
	}
	if po.WixDockerImage != "" {
		wixOpts = append(wixOpts, wix.WithDocker(po.WixDockerImage))
	}
	for _, ext := range po.WixExtensions {
		wixOpts = append(wixOpts, wix.WithExtension(ext))
	}

	wixTool := wix.New(wixOpts...)

	if err := wixTool.Candle(ctx, xmlName, objName); err != nil {
		return nil, err
	}

	if err := wixTool.Light(ctx, objName, msiName); err != nil {
		return nil, err
	}

	if err := removeIntermediate(fs, filepath.Join(po.OutputDir, objName)); err != nil {
		return nil, err
	}

	level.Info(logger).Log("msg", "built msi", "path", result.MSIPath)

	if !args.Signed {
		return result, nil
	}

	if err := signMSI(ctx, po, result.MSIPath); err != nil {
		return nil, err
	}

	checksumOpts := []checksum.Opt{checksum.WithRunnerOpts(po.RunnerOpts...)}
	if po.ChecksumTool != "" {
		checksumOpts = append(checksumOpts, checksum.WithTool(po.ChecksumTool))
	}

	sumPath, err := checksum.WriteMD5(ctx, fs, result.MSIPath, checksumOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "writing checksum")
	}
	result.ChecksumPath = sumPath

	return result, nil
}

func renderTemplate(ctx context.Context, fs afero.Fs, args *buildargs.Args, po *PackageOptions, outPath string) error {
	_, span := trace.StartSpan(ctx, "packagekit.renderTemplate")
	defer span.End()

	values := wix.TemplateValues{
		Version:            args.Version,
		PidPlatform:        args.Platform.PidPlatform(),
		DefaultDestination: args.Platform.DefaultDestination(),
		ProductDestination: ProductDestination(po.DestinationPrefix, args.Version),
	}

	var templateOpts []wix.TemplateOpt
	if po.NewGuid != nil {
		templateOpts = append(templateOpts, wix.WithGuidGenerator(po.NewGuid))
	}

	if po.TemplatePath != "" {
		if err := wix.RenderFile(fs, po.TemplatePath, outPath, values, templateOpts...); err != nil {
			return errors.Wrap(err, "rendering installer template")
		}
		return nil
	}

	template, err := internal.InstallWXS()
	if err != nil {
		return err
	}

	if err := wix.WriteRendered(fs, template, outPath, values, templateOpts...); err != nil {
		return errors.Wrap(err, "rendering installer template")
	}
	return nil
}

func signMSI(ctx context.Context, po *PackageOptions, msiPath string) error {
	signOpts := []authenticode.SigntoolOpt{
		authenticode.WithRunnerOpts(po.RunnerOpts...),
		authenticode.WithExtraArgs(po.SigntoolArgs),
	}
	if po.SigntoolPath != "" {
		signOpts = append(signOpts, authenticode.WithSigntoolPath(po.SigntoolPath))
	}
	if po.SigntoolSubject != "" {
		signOpts = append(signOpts, authenticode.WithSubjectName(po.SigntoolSubject))
	}
	if po.SigntoolTimestampURL != "" {
		signOpts = append(signOpts, authenticode.WithTimestampServer(po.SigntoolTimestampURL))
	}
	if po.SigntoolSkipVerify {
		signOpts = append(signOpts, authenticode.SkipValidation())
	}

	if err := authenticode.Sign(ctx, msiPath, signOpts...); err != nil {
		return errors.Wrap(err, "signing msi")
	}
	return nil
}

// removeIntermediate deletes candle's output once light has consumed
// it. A file that is already gone is fine.
func removeIntermediate(fs afero.Fs, path string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}
	return nil
}
