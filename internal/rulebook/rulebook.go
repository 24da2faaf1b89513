// Package rulebook loads the static disposal rules: the category entries, the
// general sorting guide and the label tables used by the resolver.
package rulebook

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/waste-sort/internal/category"
	"github.com/example/waste-sort/internal/resolver"
)

// ErrInvalid marks a rule book that cannot produce a registry or resolver.
var ErrInvalid = errors.New("invalid rule book")

//go:embed default_rules.json
var defaultRules []byte

// Book is the on-disk and in-store shape of the rules.
// A nil Labels means the built-in resolver table.
type Book struct {
	Categories []category.Category `json:"categories" yaml:"categories"`
	Guide      category.Guide      `json:"guide" yaml:"guide"`
	Labels     *resolver.Table     `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Default returns the embedded Taoyuan rule book.
func Default() (*Book, error) {
	return Parse(defaultRules, ".json")
}

// LoadFile reads a JSON or YAML rule book; the format follows the extension.
func LoadFile(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule book: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data as JSON, or as YAML when ext is ".yaml" or ".yml".
func Parse(data []byte, ext string) (*Book, error) {
	var book Book
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &book); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	default:
		if err := json.Unmarshal(data, &book); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return &book, nil
}

// Registry builds the category registry described by the book.
func (b *Book) Registry() (*category.Registry, error) {
	reg, err := category.NewRegistry(b.Categories, b.Guide)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return reg, nil
}

// Resolver builds the label resolver described by the book.
func (b *Book) Resolver() (*resolver.Resolver, error) {
	if b.Labels == nil {
		return resolver.Default(), nil
	}
	res, err := resolver.New(*b.Labels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return res, nil
}

// LabelTable returns the effective resolver table.
func (b *Book) LabelTable() resolver.Table {
	if b.Labels == nil {
		return resolver.DefaultTable()
	}
	return *b.Labels
}
