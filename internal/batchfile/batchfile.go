// Package batchfile reads and writes quiz batch documents. A batch document is
// a top-level array of quiz records encoded as JSON or YAML.
package batchfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"forum-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatOf picks the format from a file name; anything that is not .yaml or
// .yml is treated as JSON.
func FormatOf(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Decode reads a batch document. Elements that are not objects decode to a nil
// record so the importer can report them per item. A document whose top level
// is not an array fails with domain.ErrMalformedBatch.
func Decode(r io.Reader, format Format) ([]domain.RawRecord, error) {
	var top any
	switch format {
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&top); err != nil {
			return nil, malformed(err)
		}
	case JSON, "":
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&top); err != nil {
			return nil, malformed(err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, malformed(errors.New("trailing data after document"))
		}
	default:
		return nil, fmt.Errorf("unknown batch format %q", format)
	}

	items, ok := top.([]any)
	if !ok {
		return nil, malformed(fmt.Errorf("top level is %T, want array", top))
	}
	records := make([]domain.RawRecord, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			records[i] = domain.RawRecord(m)
		}
	}
	return records, nil
}

// Encode writes records as a batch document. JSON is indented by two spaces.
func Encode(w io.Writer, format Format, records []domain.RawRecord) error {
	items := make([]any, len(records))
	for i, rec := range records {
		items[i] = map[string]any(rec)
	}
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(items)
	}
}

// ReadFile decodes the batch document at path, choosing the format by extension.
func ReadFile(path string) ([]domain.RawRecord, Format, error) {
	format := FormatOf(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, format, err
	}
	defer f.Close()
	records, err := Decode(f, format)
	return records, format, err
}

// WriteFile replaces the batch document at path atomically: the new content is
// written to a sibling temp file, synced and renamed over the original.
func WriteFile(path string, format Format, records []domain.RawRecord) error {
	var buf bytes.Buffer
	if err := Encode(&buf, format, records); err != nil {
		return err
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	return os.Rename(tmpName, path)
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrMalformedBatch, err)
}
