// Package document loads source documents from the filesystem for ingestion.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// ErrNoDocuments indicates the glob matched nothing readable.
var ErrNoDocuments = errors.New("no documents matched")

// Document is one loaded source file.
type Document struct {
	Name    string
	Content string
}

// Load reads every file matching the glob pattern and returns their text
// content in match order. Directories and files that are not valid UTF-8
// text are skipped; if nothing readable remains, ErrNoDocuments is returned.
func Load(pathGlob string) ([]Document, error) {
	paths, err := filepath.Glob(pathGlob)
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", pathGlob, err)
	}

	var docs []Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}

		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", p, err)
		}
		if !utf8.Valid(raw) {
			continue
		}

		docs = append(docs, Document{
			Name:    filepath.Base(p),
			Content: string(raw),
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoDocuments, pathGlob)
	}
	return docs, nil
}
