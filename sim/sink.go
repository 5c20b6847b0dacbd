// Metric sinks: the engine reports every observable quantity as a named time
// series through a MetricsSink injected at construction time. There is no
// process-wide registry, so independent simulation instances can coexist.

package sim

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// MetricsSink receives named time series from the simulation.
// Emit is called once per relevant event per tick.
type MetricsSink interface {
	Emit(series string, tick int64, value float64)
}

// NullSink discards all emitted points.
type NullSink struct{}

func (NullSink) Emit(string, int64, float64) {}

// Point is a single (tick, value) sample of a series.
type Point struct {
	Tick  int64
	Value float64
}

// MemorySink records every emitted point, keyed by series name.
// Used by tests and by determinism comparisons between runs.
type MemorySink struct {
	series map[string][]Point
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{series: make(map[string][]Point)}
}

func (s *MemorySink) Emit(series string, tick int64, value float64) {
	s.series[series] = append(s.series[series], Point{Tick: tick, Value: value})
}

// Series returns all recorded points of the named series, in emission order.
// Returns nil if the series was never emitted.
func (s *MemorySink) Series(name string) []Point {
	return s.series[name]
}

// Names returns the recorded series names in sorted order.
func (s *MemorySink) Names() []string {
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatFileSink writes each series to <dir>/<name>.dat as "tick value" lines,
// one file per series, ready for gnuplot. Files are created lazily on the
// first point of each series. Callers must Close the sink to flush buffers;
// write errors are sticky and surface from Close.
type DatFileSink struct {
	dir     string
	writers map[string]*bufio.Writer
	files   map[string]*os.File
	err     error
}

// NewDatFileSink creates a DatFileSink writing into dir, creating it if needed.
func NewDatFileSink(dir string) (*DatFileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating metrics dir: %w", err)
	}
	return &DatFileSink{
		dir:     dir,
		writers: make(map[string]*bufio.Writer),
		files:   make(map[string]*os.File),
	}, nil
}

func (s *DatFileSink) Emit(series string, tick int64, value float64) {
	if s.err != nil {
		return
	}
	w, ok := s.writers[series]
	if !ok {
		path := filepath.Join(s.dir, series+".dat")
		f, err := os.Create(path)
		if err != nil {
			s.err = fmt.Errorf("creating series file %s: %w", path, err)
			logrus.Errorf("metrics sink: %v", s.err)
			return
		}
		s.files[series] = f
		w = bufio.NewWriter(f)
		s.writers[series] = w
	}
	if _, err := fmt.Fprintf(w, "%d %g\n", tick, value); err != nil {
		s.err = fmt.Errorf("writing series %s: %w", series, err)
	}
}

// Close flushes and closes all series files, returning the first error
// encountered during the sink's lifetime.
func (s *DatFileSink) Close() error {
	for series, w := range s.writers {
		if err := w.Flush(); err != nil && s.err == nil {
			s.err = fmt.Errorf("flushing series %s: %w", series, err)
		}
	}
	for series, f := range s.files {
		if err := f.Close(); err != nil && s.err == nil {
			s.err = fmt.Errorf("closing series %s: %w", series, err)
		}
	}
	return s.err
}
