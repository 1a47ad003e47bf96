package cmdwrapper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helperExec re-executes the test binary as a fake child. See
// TestHelperProcess.
func helperExec(scenario string) func(context.Context, string, ...string) *exec.Cmd {
	return func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", scenario}, args...)
		return exec.CommandContext(ctx, os.Args[0], cs...) //nolint:forbidigo // Fine to use exec.CommandContext in test
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name     string
		scenario string
		args     []string
		output   []string
		err      bool
	}{
		{
			name:     "exit zero",
			scenario: "exit0",
		},
		{
			name:     "stdout and stderr are combined",
			scenario: "chatty",
			args:     []string{"hello"},
			output:   []string{"out: hello", "err: hello"},
		},
		{
			name:     "nonzero exit",
			scenario: "fail",
			output:   []string{"something broke"},
			err:      true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var mirror bytes.Buffer
			r := New(WithExecCC(helperExec(tt.scenario)), WithOutput(&mirror))

			out, err := r.Run(context.Background(), "tool.exe", tt.args...)
			for _, expected := range tt.output {
				assert.Contains(t, out, expected)
				assert.Contains(t, mirror.String(), expected)
			}

			if tt.err {
				require.Error(t, err)
				require.Contains(t, err.Error(), "tool.exe")
				for _, expected := range tt.output {
					require.Contains(t, err.Error(), expected)
				}
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	r := New(WithExecCC(helperExec("sleep")), WithTimeout(500*time.Millisecond))

	start := time.Now()
	_, err := r.Run(context.Background(), "hang.exe")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 9*time.Second)
}

func TestRunLongLine(t *testing.T) {
	t.Parallel()

	r := New(WithExecCC(helperExec("longline")), WithTimeout(30*time.Second))

	start := time.Now()
	_, err := r.Run(context.Background(), "light.exe")
	require.ErrorIs(t, err, bufio.ErrTooLong)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "child should exit on its own")
	require.Less(t, time.Since(start), 20*time.Second)
}

func TestRunGrandchildHoldsOutput(t *testing.T) {
	t.Parallel()

	r := New(WithExecCC(helperExec("orphan")), WithWaitDelay(time.Second))

	start := time.Now()
	out, err := r.Run(context.Background(), "docker")
	require.NoError(t, err)
	require.Contains(t, out, "parent done")
	require.Less(t, time.Since(start), 8*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := New().Run(context.Background(), "/this/binary/does/not/exist")
	require.Error(t, err)
}

// TestHelperProcess isn't a real test. It's used as a helper process
// to fake external tools. See
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
		os.Exit(0)
	case "chatty":
		for _, a := range args[1:] {
			fmt.Fprintf(os.Stdout, "out: %s\n", a)
			fmt.Fprintf(os.Stderr, "err: %s\n", a)
		}
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "something broke")
		os.Exit(3)
	case "sleep":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "longline":
		fmt.Fprint(os.Stdout, strings.Repeat("a", 2*maxLineLength))
		fmt.Fprintln(os.Stdout, "\nafter")
		os.Exit(0)
	case "orphan":
		// leave a sleeping child holding our stdout
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "sleep") //nolint:forbidigo // Fine to use exec.Command in test
		child.Stdout = os.Stdout
		if err := child.Start(); err != nil {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stdout, "parent done")
		os.Exit(0)
	}
}
