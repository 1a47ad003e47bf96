// Package debuglogger writes a rotated JSON build log, for keeping a
// record of each packaging run next to its output.
package debuglogger

import (
	"fmt"
	"unicode/utf8"

	"github.com/go-kit/kit/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	truncatedFormatString = "%s[TRUNCATED]"
	maxOutputLength       = 4096
)

type debugLogger struct {
	logger log.Logger
}

func NewKitLogger(logFilePath string) log.Logger {
	lj := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    3, // megabytes
		Compress:   true,
		MaxBackups: 5,
	}

	dl := debugLogger{
		logger: log.With(
			log.NewJSONLogger(log.NewSyncWriter(lj)),
			"ts", log.DefaultTimestampUTC,
		),
	}

	return dl
}

func (dl debugLogger) Log(keyvals ...interface{}) error {
	truncateOutput(keyvals...)
	return dl.logger.Log(keyvals...)
}

// truncateOutput shortens captured tool output, in place. light in
// particular can print thousands of ICE warnings, which swamp the
// build log.
func truncateOutput(keyvals ...interface{}) {
	for i := 0; i < len(keyvals); i += 2 {
		if keyvals[i] == "output" && len(keyvals) > i+1 {
			str, ok := keyvals[i+1].(string)
			if ok && len(str) > maxOutputLength {
				keyvals[i+1] = fmt.Sprintf(truncatedFormatString, str[:runeBoundary(str, maxOutputLength)])
			}
		}
	}
}

// runeBoundary backs n up to the start of the rune it falls in. Tool
// output isn't always ascii.
func runeBoundary(str string, n int) int {
	for n > 0 && !utf8.RuneStart(str[n]) {
		n--
	}
	return n
}
