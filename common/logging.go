package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output by level: error-level entries go to
// stderr, everything else to stdout, so a container's two streams can be
// handled separately by whatever is capturing them.
type OutputSplitter struct{}

// Write implements io.Writer, inspecting the formatted log line for
// logrus's "level=error" marker.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package's default logger, routed through OutputSplitter.
// kv.Store and other engine components fall back to it when a caller
// doesn't supply one of their own; NewLogger builds an independent,
// differently-configured instance instead of reusing this one.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
