package handlers

import (
	"context"
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// File reads or writes local files (spec §4.4 file). Pre-check: the
// resolved path must be non-empty.
type File struct{}

func (File) Execute(ctx context.Context, req *executor.Request) (any, error) {
	if req.Adapters == nil || req.Adapters.FS == nil {
		return nil, fmt.Errorf("file: no filesystem adapter configured")
	}

	format, _ := req.Config["format"].(string)
	mode, _ := req.Config["mode"].(string)
	if mode == "" {
		mode = "read"
	}

	if mode == "write" {
		path, _ := req.Config["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("file: config.path must be non-empty after expansion")
		}
		content := req.Config["content"]
		info, err := req.Adapters.FS.Write(ctx, path, format, content)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": info.Path, "bytes_written": info.BytesWritten}, nil
	}

	if pattern, ok := req.Config["pattern"].(string); ok && pattern != "" {
		paths, err := req.Adapters.FS.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("file: glob %q: %w", pattern, err)
		}
		results := make([]any, 0, len(paths))
		for _, p := range paths {
			v, err := req.Adapters.FS.Read(ctx, p, format)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
		return results, nil
	}

	path, _ := req.Config["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("file: config.path must be non-empty after expansion")
	}
	return req.Adapters.FS.Read(ctx, path, format)
}
