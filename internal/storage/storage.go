package storage

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/types"
)

const dateLayout = "2006-01-02"

// Storage writes raw FSD traffic to one log file per UTC day and
// compresses the files of previous days
type Storage struct {
	outputDir string
	logger    logrus.FieldLogger
	now       func() time.Time

	file     *os.File
	fileDay  string
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Storage instance
func New(outputDir string, logger logrus.FieldLogger) *Storage {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Storage{
		outputDir: outputDir,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		stopChan:  make(chan struct{}),
	}
}

// FileName returns the log file name for day
func FileName(day time.Time) string {
	return fmt.Sprintf("fsd_%s.log", day.UTC().Format(dateLayout))
}

// FormatPacket renders one log line: timestamp, direction, session and packet
// separated by tabs
func FormatPacket(p *types.RawPacket) string {
	return strings.Join([]string{
		p.Timestamp.UTC().Format(time.RFC3339Nano),
		p.Direction,
		p.SessionID,
		p.Raw,
	}, "\t")
}

// Start compresses logs of previous days, opens today's file and starts the
// rotation timer
func (s *Storage) Start() error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s.mu.Lock()
	err := s.rotateAndCompress()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (s *Storage) Stop() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// WritePacket appends a raw packet to the current log file
func (s *Storage) WritePacket(p *types.RawPacket) error {
	return s.WriteLine(FormatPacket(p))
}

// WriteLine appends line to the current log file, rotating first when the
// UTC day changed
func (s *Storage) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil || s.fileDay != s.now().Format(dateLayout) {
		if err := s.rotateAndCompress(); err != nil {
			return err
		}
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := s.file.WriteString(line)
	return err
}

// rotationTimer handles daily rotation at midnight UTC
func (s *Storage) rotationTimer() {
	defer s.wg.Done()

	for {
		now := s.now()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

		select {
		case <-time.After(nextMidnight.Sub(now)):
			s.mu.Lock()
			err := s.rotateAndCompress()
			s.mu.Unlock()
			if err != nil {
				s.logger.WithError(err).Error("failed to rotate traffic log")
			}
		case <-s.stopChan:
			return
		}
	}
}

// rotateAndCompress closes the current file, compresses every finished day
// and opens today's file. Callers hold s.mu.
func (s *Storage) rotateAndCompress() error {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.logger.WithError(err).Warn("failed to close traffic log")
		}
		s.file = nil
	}

	today := FileName(s.now())
	matches, err := filepath.Glob(filepath.Join(s.outputDir, "fsd_*.log"))
	if err != nil {
		return fmt.Errorf("failed to list traffic logs: %w", err)
	}
	for _, path := range matches {
		if filepath.Base(path) == today {
			continue
		}
		if err := compressFile(path); err != nil {
			return fmt.Errorf("failed to compress file: %w", err)
		}
		s.logger.WithField("file", path).Info("compressed traffic log")
	}

	return s.rotateFile()
}

// compressFile gzips path into path.gz and removes the original
func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	gzipWriter.Name = filepath.Base(path)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		return err
	}

	// Close the gzip writer to ensure all data is written
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// rotateFile opens the log file of the current day. Callers hold s.mu.
func (s *Storage) rotateFile() error {
	day := s.now()
	filename := filepath.Join(s.outputDir, FileName(day))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.file = file
	s.fileDay = day.Format(dateLayout)
	return nil
}
