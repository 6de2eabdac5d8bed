package shred

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const ManifestName = "manifest.json"

type ManifestColumn struct {
	File   string   `json:"file"`
	Keys   []string `json:"keys"`
	Values uint64   `json:"values"`
	Bytes  uint64   `json:"bytes"`
}

type Manifest struct {
	RunID       string           `json:"run_id"`
	Created     time.Time        `json:"created"`
	Encoding    string           `json:"encoding"`
	Compression Compression      `json:"compression"`
	Columns     []ManifestColumn `json:"columns"`
	Errors      int              `json:"errors"`
	Collisions  int              `json:"collisions"`
}

// Manifest describes what the writer produced so far, columns sorted by
// file name.
func (w *Writer) Manifest() Manifest {
	m := Manifest{
		RunID:       w.runID.String(),
		Created:     w.created,
		Encoding:    w.ext,
		Compression: w.codec,
		Columns:     make([]ManifestColumn, 0, len(w.stats)),
		Errors:      w.errors,
		Collisions:  w.collisions,
	}
	for name, st := range w.stats {
		m.Columns = append(m.Columns, ManifestColumn{File: name, Keys: st.keys, Values: st.values, Bytes: st.bytes})
	}
	slices.SortFunc(m.Columns, func(a, b ManifestColumn) int {
		return strings.Compare(a.File, b.File)
	})
	return m
}

func (w *Writer) writeManifest() error {
	b, err := json.MarshalIndent(w.Manifest(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, ManifestName), append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
