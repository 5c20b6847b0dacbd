package sim

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMemorySink_RecordsInEmissionOrder(t *testing.T) {
	sink := NewMemorySink()
	sink.Emit("a", 1, 10)
	sink.Emit("b", 1, 20)
	sink.Emit("a", 2, 30)

	want := []Point{{Tick: 1, Value: 10}, {Tick: 2, Value: 30}}
	if got := sink.Series("a"); !reflect.DeepEqual(got, want) {
		t.Errorf("series a: got %v, want %v", got, want)
	}
	if got := sink.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("names: got %v, want [a b]", got)
	}
	if sink.Series("missing") != nil {
		t.Error("missing series should be nil")
	}
}

func TestDatFileSink_WritesGnuplotFiles(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDatFileSink(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewDatFileSink: %v", err)
	}

	sink.Emit("replica_1_write_queue", 1, 3)
	sink.Emit("replica_1_write_queue", 2, 4.5)
	sink.Emit("coordinator_1_total_writes", 2, 7)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "replica_1_write_queue.dat"))
	if err != nil {
		t.Fatalf("reading series file: %v", err)
	}
	if got, want := string(data), "1 3\n2 4.5\n"; got != want {
		t.Errorf("series file: got %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "coordinator_1_total_writes.dat")); err != nil {
		t.Errorf("second series file missing: %v", err)
	}
}

func TestNullSink_Discards(t *testing.T) {
	// must not panic or allocate state
	var sink NullSink
	sink.Emit("anything", 1, 2)
}
