package chunkuploader

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileSource(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.bin")

	data := testData(1000)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	source, err := OpenFileSource(path)
	if err != nil {
		t.Fatalf("OpenFileSource error: %v", err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			t.Errorf("Close error: %v", err)
		}
	}()

	if source.Size() != 1000 {
		t.Errorf("Expected size 1000, got %d", source.Size())
	}

	chunk, err := source.ReadRange(250, 500)
	if err != nil {
		t.Fatalf("ReadRange error: %v", err)
	}
	if !bytes.Equal(chunk, data[250:500]) {
		t.Errorf("ReadRange returned unexpected data")
	}

	all, err := source.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if !bytes.Equal(all, data) {
		t.Errorf("ReadAll returned unexpected data")
	}

	if _, err := source.ReadRange(900, 1001); err == nil {
		t.Error("Expected error for out of bounds range")
	}
}

func TestOpenFileSource_Missing(t *testing.T) {
	_, err := OpenFileSource(filepath.Join(t.TempDir(), "missing.bin"))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSource_ConcurrentReads(t *testing.T) {
	data := testData(10000)
	source := NewSource(bytes.NewReader(data), int64(len(data)))
	parts := Parts(int64(len(data)), 100)

	var wg sync.WaitGroup
	errs := make(chan string, len(parts))
	for _, part := range parts {
		wg.Add(1)
		go func(part PartSpec) {
			defer wg.Done()
			chunk, err := source.ReadRange(part.Start, part.End)
			if err != nil {
				errs <- err.Error()
				return
			}
			if !bytes.Equal(chunk, data[part.Start:part.End]) {
				errs <- "interleaved read"
			}
		}(part)
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Errorf("part read failed: %s", msg)
	}
}
