package wix

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/kolide/kit/env"
	"github.com/kolide/msibuild/pkg/cmdwrapper"
	"github.com/kolide/msibuild/pkg/contexts/ctxlog"
	"github.com/kolide/msibuild/pkg/packagekit/internal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// execRecorder records every command line and runs the test binary
// in its place. Tools whose base name is in fail exit nonzero.
type execRecorder struct {
	mu    sync.Mutex
	calls [][]string
	fail  map[string]bool
}

func (r *execRecorder) execCC(ctx context.Context, argv0 string, args ...string) *exec.Cmd {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{argv0}, args...))
	r.mu.Unlock()

	scenario := "exit0"
	if r.fail[toolName(argv0)] {
		scenario = "exit1"
	}

	return exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--", scenario) //nolint:forbidigo // Fine to use exec.CommandContext in test
}

// toolName handles both windows and posix separators, since the wix
// path is a windows path.
func toolName(argv0 string) string {
	if i := strings.LastIndexAny(argv0, `\/`); i >= 0 {
		return argv0[i+1:]
	}
	return argv0
}

func TestCandle(t *testing.T) {
	t.Parallel()

	rec := &execRecorder{}
	wixTool := New(
		WithWix("/opt/wix/bin"),
		As64bit(),
		WithDefine("Platform", "x64"),
		WithDefine("Channel", "stable"),
		WithRunnerOpts(cmdwrapper.WithExecCC(rec.execCC)),
	)

	require.NoError(t, wixTool.Candle(context.Background(), "Luna-x64.xml", "Luna-1.2.3.4-x64.wixobj"))
	require.Equal(t, [][]string{{
		filepath.Join("/opt/wix/bin", "candle.exe"),
		"-nologo",
		"-arch", "x64",
		"-dChannel=stable",
		"-dPlatform=x64",
		"-out", "Luna-1.2.3.4-x64.wixobj",
		"Luna-x64.xml",
	}}, rec.calls)
}

func TestLight(t *testing.T) {
	t.Parallel()

	rec := &execRecorder{}
	wixTool := New(
		WithWix("/opt/wix/bin"),
		SkipValidation(),
		WithExtension("WixUIExtension"),
		WithRunnerOpts(cmdwrapper.WithExecCC(rec.execCC)),
	)

	require.NoError(t, wixTool.Light(context.Background(), "Luna-1.2.3.4-win32.wixobj", "Luna-1.2.3.4-win32.msi"))
	require.Equal(t, [][]string{{
		filepath.Join("/opt/wix/bin", "light.exe"),
		"-nologo",
		"-ext", "WixUIExtension",
		"-out", "Luna-1.2.3.4-win32.msi",
		"Luna-1.2.3.4-win32.wixobj",
		"-sval",
	}}, rec.calls)
}

func TestLightBasePath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	rec := &execRecorder{}
	wixTool := New(
		WithWix("/opt/wix/bin"),
		WithBuildDir(t.TempDir()),
		WithBasePath(root),
		WithRunnerOpts(cmdwrapper.WithExecCC(rec.execCC)),
	)

	require.NoError(t, wixTool.Light(context.Background(), "a.wixobj", "a.msi"))
	require.Equal(t, [][]string{{
		filepath.Join("/opt/wix/bin", "light.exe"),
		"-nologo",
		"-b", root,
		"-out", "a.msi",
		"a.wixobj",
	}}, rec.calls)
}

func TestDocker(t *testing.T) {
	t.Parallel()

	buildDir := t.TempDir()
	root := t.TempDir()

	var tests = []struct {
		name     string
		basePath string
		mounts   []string
	}{
		{
			name:   "build dir only",
			mounts: []string{"-v", buildDir + ":" + buildDir},
		},
		{
			name:     "base path is mounted too",
			basePath: root,
			mounts:   []string{"-v", buildDir + ":" + buildDir, "-v", root + ":" + root},
		},
		{
			name:     "base path is the build dir",
			basePath: buildDir,
			mounts:   []string{"-v", buildDir + ":" + buildDir},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &execRecorder{}
			opts := []WixOpt{
				WithWix("/opt/wix/bin"),
				WithBuildDir(buildDir),
				WithDocker("felfert/wix"),
				WithRunnerOpts(cmdwrapper.WithExecCC(rec.execCC)),
			}
			if tt.basePath != "" {
				opts = append(opts, WithBasePath(tt.basePath))
			}

			require.NoError(t, New(opts...).Light(context.Background(), "a.wixobj", "a.msi"))
			require.Len(t, rec.calls, 1)

			expected := append([]string{"docker", "run", "--entrypoint", ""}, tt.mounts...)
			expected = append(expected,
				"-w", buildDir,
				"felfert/wix",
				"wine", filepath.Join("/opt/wix/bin", "light.exe"),
			)
			require.Equal(t, expected, rec.calls[0][:len(expected)])
		})
	}
}

func TestDockerRelativeBuildDir(t *testing.T) {
	t.Parallel()

	cwd, err := os.Getwd()
	require.NoError(t, err)

	rec := &execRecorder{}
	wixTool := New(
		WithBuildDir("."),
		WithDocker("felfert/wix"),
		WithRunnerOpts(cmdwrapper.WithExecCC(rec.execCC)),
	)

	require.NoError(t, wixTool.Candle(context.Background(), "a.xml", "a.wixobj"))
	require.Len(t, rec.calls, 1)
	require.Equal(t, []string{"-v", cwd + ":" + cwd, "-w", cwd}, rec.calls[0][4:8])
}

func TestCandleFailure(t *testing.T) {
	t.Parallel()

	rec := &execRecorder{fail: map[string]bool{"candle.exe": true}}
	wixTool := New(WithRunnerOpts(cmdwrapper.WithExecCC(rec.execCC)))

	err := wixTool.Candle(context.Background(), "in.xml", "out.wixobj")
	require.Error(t, err)
	require.Contains(t, err.Error(), "running candle")
	require.Contains(t, err.Error(), "CNDL0001")
}

// TestWixPackage runs the real toolchain, under wine in docker.
func TestWixPackage(t *testing.T) {
	t.Parallel()

	if !env.Bool("CI_TEST_PACKAGING", false) {
		t.Skip("No docker")
	}

	ctx := context.Background()
	logger := log.NewLogfmtLogger(os.Stderr)
	ctx = ctxlog.NewContext(ctx, logger)

	buildDir := t.TempDir()
	binDir := filepath.Join(buildDir, "Bin", "Win32", "Release", "Luna")
	require.NoError(t, os.MkdirAll(binDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "Luna.exe"), []byte("Hello"), 0755))

	template, err := internal.InstallWXS()
	require.NoError(t, err)

	values := TemplateValues{
		Version:            "1.2.3.4",
		PidPlatform:        "Intel",
		DefaultDestination: "ProgramFilesFolder",
		ProductDestination: "Luna 1.2.3.4",
	}
	require.NoError(t, WriteRendered(afero.NewOsFs(), template, filepath.Join(buildDir, "Luna-win32.xml"), values))

	wixTool := New(
		As32bit(),                 // wine is 32bit
		SkipValidation(),          // wine can't validate
		WithDocker("felfert/wix"), // TODO Use a Kolide distributed Dockerfile
		WithWix("/opt/wix/bin"),
		WithBuildDir(buildDir),
		WithBasePath(buildDir),
		WithDefine("Platform", "Win32"),
	)

	require.NoError(t, wixTool.Candle(ctx, "Luna-win32.xml", "Luna-1.2.3.4-win32.wixobj"))
	require.NoError(t, wixTool.Light(ctx, "Luna-1.2.3.4-win32.wixobj", "Luna-1.2.3.4-win32.msi"))

	stat, err := os.Stat(filepath.Join(buildDir, "Luna-1.2.3.4-win32.msi"))
	require.NoError(t, err)
	require.NotZero(t, stat.Size())
}

// TestHelperProcess isn't a real test. It's used as a helper process
// to fake the wix tools. See
// https://github.com/golang/go/blob/master/src/os/exec/exec_test.go#L724
// and https://npf.io/2015/06/testing-exec-command/
func TestHelperProcess(t *testing.T) {
	t.Parallel()

	// find out magic arguments
	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		// Indicates an error, or just being run in the test suite.
		return
	}

	switch args[0] {
	case "exit0":
		fmt.Println("Windows Installer XML Toolset")
		os.Exit(0)
	case "exit1":
		fmt.Fprintln(os.Stderr, "error CNDL0001 : fake failure")
		os.Exit(1)
	}
}
