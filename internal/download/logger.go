package download

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"snap-memories-downloader/internal/ledger"

	"github.com/sirupsen/logrus"
)

// newRunLogger opens the structured per-run log under the output
// directory. Console output stays human-oriented; the log file keeps
// per-entry fields for post-mortems.
func newRunLogger(outputDir string) (*logrus.Logger, io.Closer, error) {
	logsDir := filepath.Join(outputDir, "logs")
	if err := ledger.Mkdir(logsDir); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(logsDir, "run.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	return logger, f, nil
}
