package core

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/pageselect/pkg/core/types"
)

// ErrInvalidPageFile is returned when a YAML page file cannot be decoded.
var ErrInvalidPageFile = errors.New("invalid page file")

// pageFile is the on-disk layout of a YAML page fixture:
//
//	pages:
//	  - uid: 1
//	    pid: 0
//	    title: Home
//	    doktype: 1
type pageFile struct {
	Pages []types.Page `yaml:"pages"`
}

// LoadYAML decodes a page fixture using strict parsing (unknown keys are errors).
func LoadYAML(r io.Reader) ([]types.Page, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file pageFile
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return []types.Page{}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPageFile, err)
	}
	for i, p := range file.Pages {
		if p.UID == 0 {
			return nil, fmt.Errorf("%w: entry %d has no uid", ErrInvalidPage, i)
		}
	}
	return file.Pages, nil
}

// Import stores every page of a YAML fixture and returns how many were stored.
func (s *DB) Import(r io.Reader) (int, error) {
	pages, err := LoadYAML(r)
	if err != nil {
		return 0, err
	}
	for _, p := range pages {
		if err := s.Put(p); err != nil {
			return 0, err
		}
	}
	return len(pages), nil
}
