package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup builds the process-wide structured logger. When path is empty,
// logs go to stderr only; otherwise they are duplicated to a rotating
// file so operators can tail a stable location regardless of how the
// process is supervised.
func Setup(level slog.Level, path string) (*slog.Logger, error) {
	var w io.Writer = os.Stderr

	if path != "" {
		rf, err := NewRotatingFile(path)
		if err != nil {
			return nil, err
		}
		w = io.MultiWriter(os.Stderr, rf)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
