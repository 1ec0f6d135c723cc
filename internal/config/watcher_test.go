package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bensenx/MoSheng/internal/config"
)

const watcherBaseYAML = `
verification:
  threshold: 0.25
  high_threshold: 0.4
  low_threshold: 0.1
  encoder_url: "http://127.0.0.1:5001"
stt:
  model_path: /models/ggml-base.bin
`

const watcherUpdatedYAML = `
verification:
  threshold: 0.3
  high_threshold: 0.5
  low_threshold: 0.1
  encoder_url: "http://127.0.0.1:5001"
stt:
  model_path: /models/ggml-base.bin
`

const watcherInvalidYAML = `
verification:
  threshold: 0.5
  high_threshold: 0.3
  low_threshold: 0.1
  encoder_url: "http://127.0.0.1:5001"
stt:
  model_path: /models/ggml-base.bin
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherBaseYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after initial load")
	}
	if cfg.Verification.Thresholds.Accept != 0.25 {
		t.Errorf("threshold = %v, want 0.25", cfg.Verification.Thresholds.Accept)
	}
}

func TestWatcherDetectsThresholdChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherBaseYAML)

	var mu sync.Mutex
	var gotOld, gotCur *config.Config
	called := make(chan struct{}, 1)

	w, err := config.NewWatcher(cfgPath, func(old, cur *config.Config) {
		mu.Lock()
		gotOld, gotCur = old, cur
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld == nil || gotCur == nil {
		t.Fatal("callback received nil configs")
	}
	if gotOld.Verification.Thresholds.Accept != 0.25 {
		t.Errorf("old threshold = %v, want 0.25", gotOld.Verification.Thresholds.Accept)
	}
	if gotCur.Verification.Thresholds.Accept != 0.3 {
		t.Errorf("new threshold = %v, want 0.3", gotCur.Verification.Thresholds.Accept)
	}
	if w.Current().Verification.Thresholds.Accept != 0.3 {
		t.Errorf("Current() not updated")
	}
}

func TestWatcherInvalidEditKeepsOldConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherBaseYAML)

	var mu sync.Mutex
	callCount := 0

	w, err := config.NewWatcher(cfgPath, func(_, _ *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, cfgPath, watcherInvalidYAML)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := callCount
	mu.Unlock()
	if calls != 0 {
		t.Errorf("callback fired %d times for an invalid edit", calls)
	}
	if w.Current().Verification.Thresholds.Accept != 0.25 {
		t.Error("Current() replaced by an invalid config")
	}
}

func TestWatcherInitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/mosheng.yaml", nil); err == nil {
		t.Fatal("NewWatcher succeeded on a missing file")
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherBaseYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcherTouchWithoutChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherBaseYAML)

	var mu sync.Mutex
	callCount := 0

	w, err := config.NewWatcher(cfgPath, func(_, _ *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(cfgPath, now, now); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if callCount != 0 {
		t.Errorf("callback fired %d times for a touch-only change", callCount)
	}
}
