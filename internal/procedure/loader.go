package procedure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vetlab/backend/pkg/logger"
)

var supportedExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// LoadFile parses a single procedure definition. YAML and JSON are accepted.
func LoadFile(path string) (*Procedure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read procedure file %q: %w", path, err)
	}

	p, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse procedure file %q: %w", path, err)
	}

	return p, nil
}

// Parse decodes a procedure from raw bytes. ext selects the decoder (".json" or YAML otherwise).
func Parse(data []byte, ext string) (*Procedure, error) {
	var p Procedure

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, err
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.normalize()

	return &p, nil
}

// LoadDir loads every supported file in dir. Invalid files are logged and skipped;
// duplicate ids are an error because the catalog could not decide which one wins.
func LoadDir(dir string) ([]*Procedure, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read procedure directory %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	procedures := make([]*Procedure, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := LoadFile(path)
		if err != nil {
			logger.Warn("Skipping invalid procedure file", zap.String("path", path), zap.Error(err))
			continue
		}
		if prev, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("duplicate procedure id %q in %s and %s", p.ID, prev, name)
		}
		seen[p.ID] = name
		procedures = append(procedures, p)
	}

	logger.Info("Procedures loaded", zap.String("dir", dir), zap.Int("count", len(procedures)))
	return procedures, nil
}
