package objstore

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type MirrorStats struct {
	QueueDepth   int
	Enqueued     uint64
	Dropped      uint64
	Uploaded     uint64
	Failed       uint64
	LastUploadAt int64 // unix seconds
}

type MirrorConfig struct {
	DataDir string
	Prefix  string
	Workers int
	Queue   int
	// Wait bounds how long Enqueue blocks on a full queue before dropping.
	Wait time.Duration
	// Attempts per file; backoff grows as attempt^2 * 200ms.
	Attempts int
	Logger   *log.Logger
}

// Mirror uploads files below DataDir in the background. The object key is
// the file's path relative to DataDir, under Prefix.
type Mirror struct {
	put    func(ctx context.Context, key, localPath string) error
	cfg    MirrorConfig
	jobs   chan string
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed and sends on jobs
	closed bool

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
	lastOK   atomic.Int64
}

func NewMirror(c *Client, cfg MirrorConfig) *Mirror {
	return newMirror(c.PutFile, cfg)
}

func newMirror(put func(ctx context.Context, key, localPath string) error, cfg MirrorConfig) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 25 * time.Millisecond
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")

	m := &Mirror{put: put, cfg: cfg, jobs: make(chan string, cfg.Queue)}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.upload(p)
			}
		}()
	}
	return m
}

// Enqueue schedules localPath for upload. It never blocks longer than
// MirrorConfig.Wait; a nil or closed Mirror ignores the call.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	t := time.NewTimer(m.cfg.Wait)
	defer t.Stop()
	select {
	case m.jobs <- localPath:
	case <-t.C:
		n := m.dropped.Add(1)
		m.logf("mirror drop local=%s dropped_total=%d", localPath, n)
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Mirror) Stats() MirrorStats {
	if m == nil {
		return MirrorStats{}
	}
	return MirrorStats{
		QueueDepth:   len(m.jobs),
		Enqueued:     m.enqueued.Load(),
		Dropped:      m.dropped.Load(),
		Uploaded:     m.uploaded.Load(),
		Failed:       m.failed.Load(),
		LastUploadAt: m.lastOK.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.key(localPath)
	if err != nil {
		m.failed.Add(1)
		m.logf("mirror skip local=%s: %v", localPath, err)
		return
	}
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.put(ctx, key, localPath)
		cancel()
		if err == nil {
			m.uploaded.Add(1)
			m.lastOK.Store(time.Now().Unix())
			m.logf("mirror uploaded key=%s", key)
			return
		}
		if attempt >= m.cfg.Attempts {
			break
		}
		time.Sleep(time.Duration(attempt*attempt) * 200 * time.Millisecond)
	}
	m.failed.Add(1)
	m.logf("mirror upload failed key=%s: %v", key, err)
}

func (m *Mirror) key(localPath string) (string, error) {
	base, err := filepath.Abs(m.cfg.DataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside data dir %s", abs, base)
	}
	if m.cfg.Prefix != "" {
		rel = path.Join(m.cfg.Prefix, rel)
	}
	return rel, nil
}

func (m *Mirror) logf(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
