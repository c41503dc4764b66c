package diag

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NewLogger builds a logrus.Logger writing to out at the given level.
// Callers thread the returned logger explicitly through the driver and
// core rather than relying on logrus's package-level default logger, the
// same way the CLI passes its stdout/stderr writers explicitly instead
// of writing to os.Stdout directly.
func NewLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: false})
	return l
}

// Diagnostic is a compile diagnostic (§3, §4.K): one per class/method
// that failed to compile, carried through to the structured logger and
// to the CLI's exit-code decision.
type Diagnostic struct {
	Class  string
	Method string
	Err    error
}

// Log emits d at error level with class/method fields attached, and
// wraps d.Err with a captured stack trace at the point it's first
// reported, so a developer triaging a swallowed per-class failure from
// the CLI's combined log has a trace to start from even though the CLI
// itself continues past it.
func (d Diagnostic) Log(logger *logrus.Entry) {
	wrapped := errors.WithStack(d.Err)
	fields := logrus.Fields{"class": d.Class}
	if d.Method != "" {
		fields["method"] = d.Method
	}
	logger.WithFields(fields).WithError(wrapped).Error("class failed to compile")
}
