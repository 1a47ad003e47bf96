// Package authenticode is a light wrapper around signing code with
// signtool.exe.
//
// See
//
// https://docs.microsoft.com/en-us/dotnet/framework/tools/signtool-exe
package authenticode

import (
	"context"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/msibuild/pkg/cmdwrapper"
	"github.com/kolide/msibuild/pkg/contexts/ctxlog"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

const defaultTimestampServer = "http://timestamp.digicert.com"

// signtoolOptions are the options for how we call signtool.exe. These
// are *not* the tool options, but instead our own representation of
// the arguments.
type signtoolOptions struct {
	extraArgs      []string
	subjectName    string // If present, use this as the `/n` argument
	skipValidation bool
	signtoolPath   string
	rfc3161Server  string

	runnerOpts []cmdwrapper.Option
}

type SigntoolOpt func(*signtoolOptions)

// SkipValidation skips the `signtool verify` pass after signing.
func SkipValidation() SigntoolOpt {
	return func(so *signtoolOptions) {
		so.skipValidation = true
	}
}

// WithExtraArgs set additional arguments for signtool. Common ones may be {`/f`, "cert.pfx"}
func WithExtraArgs(args []string) SigntoolOpt {
	return func(so *signtoolOptions) {
		so.extraArgs = args
	}
}

func WithSigntoolPath(path string) SigntoolOpt {
	return func(so *signtoolOptions) {
		so.signtoolPath = path
	}
}

func WithSubjectName(name string) SigntoolOpt {
	return func(so *signtoolOptions) {
		so.subjectName = name
	}
}

// WithTimestampServer sets the RFC 3161 timestamp server.
func WithTimestampServer(url string) SigntoolOpt {
	return func(so *signtoolOptions) {
		so.rfc3161Server = url
	}
}

func WithRunnerOpts(opts ...cmdwrapper.Option) SigntoolOpt {
	return func(so *signtoolOptions) {
		so.runnerOpts = append(so.runnerOpts, opts...)
	}
}

// Sign signs file in place with a sha256 signature and a timestamp,
// then verifies the result.
func Sign(ctx context.Context, file string, opts ...SigntoolOpt) error {
	ctx, span := trace.StartSpan(ctx, "authenticode.Sign")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	so := &signtoolOptions{
		signtoolPath:  "signtool.exe",
		rfc3161Server: defaultTimestampServer,
	}

	for _, opt := range opts {
		opt(so)
	}

	runner := cmdwrapper.New(so.runnerOpts...)

	args := []string{
		"sign",
		"/fd", "sha256",
		"/tr", so.rfc3161Server,
		"/td", "sha256",
		"/v",
	}

	if so.subjectName != "" {
		args = append(args, "/n", so.subjectName)
	}

	args = append(args, so.extraArgs...)
	args = append(args, file)

	if _, err := runner.Run(ctx, so.signtoolPath, args...); err != nil {
		return errors.Wrap(err, "calling signtool")
	}

	if so.skipValidation {
		level.Debug(logger).Log("msg", "skipping signature verification", "file", file)
		return nil
	}

	if _, err := runner.Run(ctx, so.signtoolPath, "verify", "/pa", "/v", file); err != nil {
		return errors.Wrap(err, "verifying signature")
	}

	level.Info(logger).Log("msg", "signed", "file", file)

	return nil
}
