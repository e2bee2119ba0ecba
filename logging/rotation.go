package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dailyRotatingWriter is a writer that creates a new log file each day
type dailyRotatingWriter struct {
	logDir      string
	filename    string
	currentFile *os.File
	currentDate string
	now         func() time.Time
	mu          sync.Mutex
}

func newDailyRotatingWriter(logDir, filename string) *dailyRotatingWriter {
	return &dailyRotatingWriter{
		logDir:   logDir,
		filename: filename,
		now:      time.Now,
	}
}

// Write implements the io.Writer interface
func (w *dailyRotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// local time, so files line up with the operator's day
	currentDate := w.now().Format("2006-01-02")

	if w.currentFile == nil || w.currentDate != currentDate {
		if err := w.rotate(currentDate); err != nil {
			return 0, err
		}
	}

	return w.currentFile.Write(p)
}

func (w *dailyRotatingWriter) rotate(date string) error {
	if w.currentFile != nil {
		w.currentFile.Close()
	}

	path := filepath.Join(w.logDir, fmt.Sprintf("%s-%s.log", w.filename, date))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.currentFile = file
	w.currentDate = date
	return nil
}

// Close closes the current file
func (w *dailyRotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		return err
	}
	return nil
}
