// Package checksum writes md5sum style checksum files next to built
// packages.
package checksum

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/msibuild/pkg/cmdwrapper"
	"github.com/kolide/msibuild/pkg/contexts/ctxlog"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var md5Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

type options struct {
	tool       string
	runnerOpts []cmdwrapper.Option
}

type Opt func(*options)

// WithTool computes the digest with an external utility, such as
// md5sum or fciv, instead of in process. The utility is called with
// the file path as its only argument, and the digest must be the first
// field of its output.
func WithTool(path string) Opt {
	return func(o *options) {
		o.tool = path
	}
}

func WithRunnerOpts(opts ...cmdwrapper.Option) Opt {
	return func(o *options) {
		o.runnerOpts = append(o.runnerOpts, opts...)
	}
}

// WriteMD5 writes `<path>.md5` holding the digest of path and its base
// name. It returns the checksum file's path.
func WriteMD5(ctx context.Context, fs afero.Fs, path string, opts ...Opt) (string, error) {
	logger := ctxlog.FromContext(ctx)

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var (
		sum string
		err error
	)
	if o.tool != "" {
		sum, err = externalMD5(ctx, o, path)
	} else {
		sum, err = fileMD5(fs, path)
	}
	if err != nil {
		return "", err
	}

	sumPath := path + ".md5"
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := afero.WriteFile(fs, sumPath, []byte(line), 0644); err != nil {
		return "", errors.Wrapf(err, "writing %s", sumPath)
	}

	level.Debug(logger).Log("msg", "wrote checksum", "file", sumPath, "md5", sum)

	return sumPath, nil
}

func fileMD5(fs afero.Fs, path string) (string, error) {
	fh, err := fs.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", path)
	}
	defer fh.Close()

	h := md5.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func externalMD5(ctx context.Context, o *options, path string) (string, error) {
	out, err := cmdwrapper.New(o.runnerOpts...).Run(ctx, o.tool, path)
	if err != nil {
		return "", errors.Wrap(err, "running checksum tool")
	}

	// fciv prints comment lines before the digest
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "//") {
			continue
		}
		if md5Pattern.MatchString(fields[0]) {
			return strings.ToLower(fields[0]), nil
		}
	}

	return "", errors.Errorf("no md5 in output of %s: %q", o.tool, out)
}
