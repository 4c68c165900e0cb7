package coa

import (
	"fmt"
	"os"
	"sync"

	hjson "github.com/hjson/hjson-go/v4"
)

var (
	global *Registry
	once   sync.Once
)

// schemaFile mirrors the layout of resources/canonical_coa.hjson.
// Hjson so the schema stays human-editable with comments.
type schemaFile struct {
	Items []LineItem `json:"items"`
}

// Parse builds a Registry from raw Hjson schema bytes.
func Parse(data []byte) (*Registry, error) {
	var file schemaFile
	if err := hjson.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse canonical schema: %w", err)
	}
	if len(file.Items) == 0 {
		return nil, fmt.Errorf("canonical schema has no items")
	}
	return newRegistry(file.Items)
}

// LoadFile reads and parses a schema file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read canonical schema %s: %w", path, err)
	}
	return Parse(data)
}

// Init loads the process-wide registry exactly once. Later calls are no-ops
// even with a different path; the schema is immutable for the process
// lifetime.
func Init(path string) error {
	var err error
	once.Do(func() {
		global, err = LoadFile(path)
	})
	if err != nil {
		return err
	}
	if global == nil {
		return fmt.Errorf("canonical schema not initialized")
	}
	return nil
}

// Get returns the process-wide registry. Panics if Init has not succeeded;
// startup must load the schema before any engine runs.
func Get() *Registry {
	if global == nil {
		panic("coa: canonical schema not loaded; call coa.Init at startup")
	}
	return global
}
