package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sheet-downloader/internal/domain"
)

// DefaultMarkerSuffixes are the partial-download suffixes written by Chrome, Firefox and Safari.
var DefaultMarkerSuffixes = []string{".crdownload", ".part", ".download"}

type Config struct {
	Interval       time.Duration
	Extension      string
	MarkerSuffixes []string
	Logger         *logrus.Logger
}

// Watcher detects a download that finished inside a directory. A Watcher
// belongs to an owner whose lifetime is the context given to New; once that
// context is done every Await fails with domain.ErrClientClosed.
type Watcher struct {
	cfg      Config
	lifetime context.Context
}

// CandidateFile is a file seen in the watched directory during one poll.
type CandidateFile struct {
	Path       string
	ModTime    time.Time
	InProgress bool
}

// Session is the state of one Await call.
type Session struct {
	ID        string
	Directory string
	Since     time.Time
	Timeout   time.Duration
	Deadline  time.Time

	caller   context.Context
	lifetime context.Context
	deadline context.Context
}

func New(lifetime context.Context, cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Extension == "" {
		cfg.Extension = ".csv"
	}
	if !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}
	if len(cfg.MarkerSuffixes) == 0 {
		cfg.MarkerSuffixes = DefaultMarkerSuffixes
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Watcher{cfg: cfg, lifetime: lifetime}
}

// Interval is the poll period of the watcher.
func (w *Watcher) Interval() time.Duration {
	return w.cfg.Interval
}

// Await polls dir until a file matching the extension filter, without an
// in-progress marker and modified strictly after since, shows up. It waits one
// more interval before settling on the newest such file.
//
// The caller's ctx, the watcher's lifetime and the timeout race each other.
// When the wait ends early the cause is reported in that priority order:
// domain.ErrUserCancelled, domain.ErrClientClosed, then *domain.TimeoutError.
func (w *Watcher) Await(ctx context.Context, dir string, since time.Time, timeout time.Duration) (string, error) {
	// The deadline context is rooted in Background so that it only ever
	// reports the timeout.
	deadlineCtx, cancel := context.WithTimeout(context.Background(), timeout+w.cfg.Interval)
	defer cancel()
	deadline, _ := deadlineCtx.Deadline()

	s := &Session{
		ID:        uuid.NewString(),
		Directory: dir,
		Since:     since,
		Timeout:   timeout,
		Deadline:  deadline,
		caller:    ctx,
		lifetime:  w.lifetime,
		deadline:  deadlineCtx,
	}
	logger := w.cfg.Logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"dir":        dir,
	})
	logger.Debugf("watching for %s files modified after %s", w.cfg.Extension, since.Format(time.RFC3339Nano))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.caller.Done():
			return "", s.cause()
		case <-s.lifetime.Done():
			return "", s.cause()
		case <-s.deadline.Done():
			return "", s.cause()
		case <-ticker.C:
		}

		found, err := w.eligible(dir, since)
		if err != nil {
			return "", err
		}
		if len(found) == 0 {
			continue
		}
		logger.Debugf("found %d finished candidate(s), waiting for the browser to flush", len(found))

		if err := s.pause(w.cfg.Interval); err != nil {
			return "", err
		}

		found, err = w.eligible(dir, since)
		if err != nil {
			return "", err
		}
		if len(found) == 0 {
			logger.Debug("candidates disappeared, resuming poll")
			continue
		}
		logger.Infof("download detected: %s", found[0].Path)
		return found[0].Path, nil
	}
}

// Scan lists the files in dir that match the extension filter.
func (w *Watcher) Scan(dir string) ([]CandidateFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = struct{}{}
	}

	var candidates []CandidateFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), w.cfg.Extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		candidates = append(candidates, CandidateFile{
			Path:       filepath.Join(dir, entry.Name()),
			ModTime:    info.ModTime(),
			InProgress: w.hasMarker(entry.Name(), names),
		})
	}
	return candidates, nil
}

// eligible returns the finished candidates modified after since, newest first.
func (w *Watcher) eligible(dir string, since time.Time) ([]CandidateFile, error) {
	candidates, err := w.Scan(dir)
	if err != nil {
		return nil, err
	}

	found := candidates[:0]
	for _, c := range candidates {
		if c.InProgress || !c.ModTime.After(since) {
			continue
		}
		found = append(found, c)
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].ModTime.After(found[j].ModTime)
	})
	return found, nil
}

func (w *Watcher) hasMarker(name string, names map[string]struct{}) bool {
	for _, suffix := range w.cfg.MarkerSuffixes {
		if _, ok := names[name+suffix]; ok {
			return true
		}
	}
	return false
}

// pause sleeps for d unless one of the session's signals fires first.
func (s *Session) pause(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-s.caller.Done():
	case <-s.lifetime.Done():
	case <-s.deadline.Done():
	}
	return s.cause()
}

// cause classifies why the session ended by checking each signal in priority order.
func (s *Session) cause() error {
	switch {
	case s.caller.Err() != nil:
		return fmt.Errorf("%w: %w", domain.ErrUserCancelled, s.caller.Err())
	case s.lifetime.Err() != nil:
		return domain.ErrClientClosed
	default:
		return &domain.TimeoutError{Timeout: s.Timeout}
	}
}
