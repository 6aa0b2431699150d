package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tiiuae/drclink/internal/config"
)

// Recorder appends raw OSD pushes as JSON lines while enabled.
type Recorder struct {
	mu      sync.Mutex
	enabled bool
	out     io.WriteCloser
}

type recordLine struct {
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewRecorder writes to <dir>/osd_data_<index>.json, rotated by size.
func NewRecorder(cfg config.RotateConfig, index int) *Recorder {
	return newRecorder(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, fmt.Sprintf("osd_data_%d.json", index)),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}

func newRecorder(out io.WriteCloser) *Recorder {
	return &Recorder{out: out}
}

// Toggle flips recording and returns the new state.
func (r *Recorder) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = !r.enabled
	return r.enabled
}

func (r *Recorder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record writes one line if recording is enabled.
func (r *Recorder) Record(data json.RawMessage, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return nil
	}

	b, err := json.Marshal(recordLine{
		Timestamp: float64(at.Unix()) + float64(at.Nanosecond())/float64(time.Second),
		Data:      data,
	})
	if err != nil {
		return errors.WithMessage(err, "Could not encode OSD record")
	}
	_, err = r.out.Write(append(b, '\n'))
	return errors.WithMessage(err, "Could not write OSD record")
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.Close()
}
