package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kolide/kit/env"
	"github.com/peterbourgon/ff/v3"
)

// options is the set of configurable options that may be set when
// running this program, via flags, environment, or config file.
type options struct {
	debug        bool
	printVersion bool
	logFile      string

	root         string
	outputDir    string
	layoutFile   string
	templatePath string

	product           string
	destinationPrefix string

	wixPath           string
	wixSkipValidation bool
	wixExtensions     []string
	wixDockerImage    string
	toolTimeout       time.Duration

	signtoolPath         string
	signtoolArgs         []string
	signtoolSubject      string
	signtoolTimestampURL string
	signtoolSkipVerify   bool
	checksumTool         string

	// tokens are the positional key=value arguments
	tokens []string
}

// parseOptions parses flags, environment (MSIBUILD_*), and an optional
// plain config file. Flags must come before the key=value arguments.
func parseOptions(args []string, usageOut io.Writer) (*options, *flag.FlagSet, error) {
	flagset := flag.NewFlagSet("msibuild", flag.ContinueOnError)
	flagset.SetOutput(io.Discard)

	var (
		flDebug = flagset.Bool(
			"debug",
			false,
			"Whether or not debug logging is enabled (default: false)",
		)
		flVersion = flagset.Bool(
			"version",
			false,
			"Print msibuild version and exit",
		)
		flLogFile = flagset.String(
			"logfile",
			"",
			"Also write a JSON build log, rotated, to this path",
		)
		_ = flagset.String(
			"config",
			"",
			"Path to a config file of flag values",
		)
		flRoot = flagset.String(
			"root",
			".",
			"Root of the build tree",
		)
		flOutputDir = flagset.String(
			"output_dir",
			".",
			"Where the xml, msi, and checksum are written",
		)
		flLayout = flagset.String(
			"layout",
			"",
			"YAML file listing the required build directories (default: built in list)",
		)
		flTemplate = flagset.String(
			"template",
			"",
			"Installer template (default: built in template)",
		)
		flProduct = flagset.String(
			"product",
			"Luna",
			"Product name, used in output file names",
		)
		flDestinationPrefix = flagset.String(
			"destination_prefix",
			"Luna ",
			"Install folder name, the version is appended",
		)
		flWix = flagset.String(
			"wix",
			env.String("WIX_BIN", `C:\wix311`),
			"Directory holding candle.exe and light.exe",
		)
		flWixSkipValidation = flagset.Bool(
			"wix_skip_validation",
			false,
			"Pass -sval to light. Needed under wine",
		)
		flWixExtensions = flagset.String(
			"wix_ext",
			"",
			"Comma separated wix extensions for light, eg: WixUIExtension",
		)
		flWixDocker = flagset.String(
			"wix_docker",
			"",
			"Run the wix tools under wine in this docker image",
		)
		flTimeout = flagset.Duration(
			"timeout",
			0,
			"Kill any external tool that runs longer than this (default: no limit)",
		)
		flSigntool = flagset.String(
			"signtool",
			"signtool.exe",
			"Path to signtool.exe",
		)
		flSigntoolArgs = flagset.String(
			"signtool_args",
			"",
			"Space separated extra arguments for signtool, eg: /f cert.pfx",
		)
		flSigntoolSubject = flagset.String(
			"sign_subject",
			"",
			"Subject name of the signing certificate",
		)
		flTimestampURL = flagset.String(
			"timestamp_url",
			"",
			"RFC 3161 timestamp server for signing",
		)
		flSkipVerify = flagset.Bool(
			"sign_skip_verify",
			false,
			"Don't verify the signature after signing",
		)
		flChecksumTool = flagset.String(
			"checksum_tool",
			"",
			"External md5 utility (default: computed in process)",
		)
	)

	flagset.Usage = usageFor(flagset, usageOut)

	if err := ff.Parse(flagset, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("MSIBUILD"),
	); err != nil {
		return nil, flagset, err
	}

	opts := &options{
		debug:                *flDebug,
		printVersion:         *flVersion,
		logFile:              *flLogFile,
		root:                 *flRoot,
		outputDir:            *flOutputDir,
		layoutFile:           *flLayout,
		templatePath:         *flTemplate,
		product:              *flProduct,
		destinationPrefix:    *flDestinationPrefix,
		wixPath:              *flWix,
		wixSkipValidation:    *flWixSkipValidation,
		wixExtensions:        splitNonEmpty(*flWixExtensions, ","),
		wixDockerImage:       *flWixDocker,
		toolTimeout:          *flTimeout,
		signtoolPath:         *flSigntool,
		signtoolArgs:         strings.Fields(*flSigntoolArgs),
		signtoolSubject:      *flSigntoolSubject,
		signtoolTimestampURL: *flTimestampURL,
		signtoolSkipVerify:   *flSkipVerify,
		checksumTool:         *flChecksumTool,
		tokens:               flagset.Args(),
	}

	return opts, flagset, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func usageFor(fs *flag.FlagSet, out io.Writer) func() {
	return func() {
		fmt.Fprintf(out, "USAGE\n")
		fmt.Fprintf(out, "  msibuild [flags] version=X.X.X.X [platform=win32|x64] [signed=yes|no]\n")
		fmt.Fprintf(out, "\n")
		fmt.Fprintf(out, "FLAGS\n")
		w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(out, "\n")
	}
}
