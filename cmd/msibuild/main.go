// Command msibuild stamps a version and platform into the installer
// template, and builds (and optionally signs) the msi with wix.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/logutil"
	"github.com/kolide/kit/version"
	"github.com/kolide/msibuild/pkg/buildargs"
	"github.com/kolide/msibuild/pkg/cmdwrapper"
	"github.com/kolide/msibuild/pkg/contexts/ctxlog"
	"github.com/kolide/msibuild/pkg/layout"
	"github.com/kolide/msibuild/pkg/log/debuglogger"
	"github.com/kolide/msibuild/pkg/log/teelogger"
	"github.com/kolide/msibuild/pkg/packagekit"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

func main() {
	opts, flagset, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagset.Usage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %s\n\n", err)
		flagset.Usage()
		os.Exit(1)
	}

	if opts.printVersion {
		version.PrintFull()
		os.Exit(0)
	}

	logger := logutil.NewCLILogger(opts.debug)
	if opts.logFile != "" {
		logger = teelogger.New(logger, debuglogger.NewKitLogger(opts.logFile))
	}

	ctx := ctxlog.NewContext(context.Background(), logger)

	result, err := build(ctx, afero.NewOsFs(), opts, cmdwrapper.WithOutput(os.Stdout))
	if err != nil {
		level.Debug(logger).Log("msg", "msibuild failed", "err", err)
		describe(os.Stderr, err)
		flagset.Usage()
		os.Exit(1)
	}

	logger.Log(
		"msg", "build complete",
		"msi", result.MSIPath,
		"checksum", result.ChecksumPath,
	)
}

// build runs one packaging pass. The key=value arguments are checked
// before anything touches the build tree.
func build(ctx context.Context, fs afero.Fs, opts *options, runnerOpts ...cmdwrapper.Option) (*packagekit.Result, error) {
	logger := ctxlog.FromContext(ctx)

	args, err := buildargs.Parse(opts.tokens)
	if err != nil {
		return nil, err
	}

	level.Debug(logger).Log(
		"msg", "parsed arguments",
		"version", args.Version,
		"platform", args.Platform,
		"signed", args.Signed,
	)

	dirs := layout.DefaultDirs
	if opts.layoutFile != "" {
		dirs, err = layout.Load(fs, opts.layoutFile)
		if err != nil {
			return nil, err
		}
	}

	if opts.toolTimeout > 0 {
		runnerOpts = append(runnerOpts, cmdwrapper.WithTimeout(opts.toolTimeout))
	}

	po := &packagekit.PackageOptions{
		Name:                 opts.product,
		Root:                 opts.root,
		Dirs:                 dirs,
		OutputDir:            opts.outputDir,
		TemplatePath:         opts.templatePath,
		DestinationPrefix:    opts.destinationPrefix,
		WixPath:              opts.wixPath,
		WixSkipValidation:    opts.wixSkipValidation,
		WixExtensions:        opts.wixExtensions,
		WixDockerImage:       opts.wixDockerImage,
		SigntoolPath:         opts.signtoolPath,
		SigntoolArgs:         opts.signtoolArgs,
		SigntoolSubject:      opts.signtoolSubject,
		SigntoolTimestampURL: opts.signtoolTimestampURL,
		SigntoolSkipVerify:   opts.signtoolSkipVerify,
		ChecksumTool:         opts.checksumTool,
		Fs:                   fs,
		RunnerOpts:           runnerOpts,
	}

	return packagekit.PackageMSI(ctx, args, po)
}

// describe is a short, human readable version of the failure, for the
// line printed above the usage text.
func describe(w io.Writer, err error) {
	switch {
	case errors.Is(err, layout.ErrMissingDirectory):
		fmt.Fprintf(w, "Error: build tree is incomplete, is everything built? (%s)\n\n", err)
	default:
		fmt.Fprintf(w, "Error: %s\n\n", err)
	}
}
