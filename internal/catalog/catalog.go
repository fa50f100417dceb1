/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog reads the ordered source list from a YAML file.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/camrotator/internal/models"
)

// ErrEmpty is returned for a file without sources.
var ErrEmpty = errors.New("catalog has no sources")

// File is the on-disk layout.
type File struct {
	Sources []Entry `yaml:"sources"`
}

// Entry is one source as written by operators. Kind accepts the loose spellings
// understood by models.ParseSourceKind.
type Entry struct {
	ID         string   `yaml:"id"`
	Kind       string   `yaml:"kind"`
	Title      string   `yaml:"title"`
	Channel    string   `yaml:"channel"`
	URL        string   `yaml:"url"`
	MaxSeconds int      `yaml:"max_seconds"`
	Tags       []string `yaml:"tags"`
}

// LoadFile reads and parses the catalog at path.
func LoadFile(path string) ([]models.Source, error) {
	// #nosec G304 -- catalog path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	sources, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sources, nil
}

// Parse decodes a catalog document. Unknown keys, duplicate or empty ids and trailing
// documents are errors; an unknown kind is not (the source is kept as unsupported).
func Parse(data []byte) ([]models.Source, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("catalog contains multiple documents or trailing content")
	}
	if len(file.Sources) == 0 {
		return nil, ErrEmpty
	}

	seen := make(map[string]int, len(file.Sources))
	out := make([]models.Source, 0, len(file.Sources))
	for i, e := range file.Sources {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("source #%d has no id", i+1)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("source %q listed twice (#%d and #%d)", id, prev+1, i+1)
		}
		seen[id] = i
		maxSeconds := e.MaxSeconds
		if maxSeconds < 0 {
			maxSeconds = 0
		}
		out = append(out, models.Source{
			ID:         id,
			Kind:       models.ParseSourceKind(e.Kind),
			MaxSeconds: maxSeconds,
			Title:      strings.TrimSpace(e.Title),
			Channel:    strings.TrimSpace(e.Channel),
			URL:        strings.TrimSpace(e.URL),
			Tags:       e.Tags,
			Position:   i,
		})
	}
	return out, nil
}

// Warnings lists problems that do not stop the rotation but an operator should fix.
func Warnings(sources []models.Source) []string {
	var out []string
	playable := 0
	for _, src := range sources {
		if !src.Kind.Playable() {
			out = append(out, fmt.Sprintf("%s: unsupported kind, the source will fail immediately", src.ID))
			continue
		}
		playable++
		if src.URL == "" {
			out = append(out, fmt.Sprintf("%s: no url", src.ID))
		} else if u, err := url.Parse(src.URL); err != nil || u.Scheme == "" || u.Host == "" {
			out = append(out, fmt.Sprintf("%s: url %q is not absolute", src.ID, src.URL))
		}
	}
	if playable == 0 && len(sources) > 0 {
		out = append(out, "no playable sources")
	}
	return out
}
