package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFilesystem is the stdlib-backed filesystem adapter for the file
// node kind (spec §4.4).
type DefaultFilesystem struct{}

func NewDefaultFilesystem() *DefaultFilesystem { return &DefaultFilesystem{} }

func (a *DefaultFilesystem) Read(ctx context.Context, path, format string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return decode(data, format)
}

func (a *DefaultFilesystem) Write(ctx context.Context, path, format string, content any) (*WriteInfo, error) {
	data, err := encode(content, format)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return &WriteInfo{Path: path, BytesWritten: len(data)}, nil
}

func (a *DefaultFilesystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

func decode(data []byte, format string) (any, error) {
	switch format {
	case "", "text":
		return string(data), nil
	case "bytes":
		return data, nil
	case "json":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return v, nil
	case "yaml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown file format %q", format)
	}
}

func encode(content any, format string) ([]byte, error) {
	switch format {
	case "", "text":
		s, ok := content.(string)
		if !ok {
			return nil, fmt.Errorf("text format requires a string content value")
		}
		return []byte(s), nil
	case "bytes":
		b, ok := content.([]byte)
		if !ok {
			if s, ok := content.(string); ok {
				return []byte(s), nil
			}
			return nil, fmt.Errorf("bytes format requires a []byte or string content value")
		}
		return b, nil
	case "json":
		return json.MarshalIndent(content, "", "  ")
	case "yaml":
		return yaml.Marshal(content)
	default:
		return nil, fmt.Errorf("unknown file format %q", format)
	}
}
