package engine

import (
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
)

// resolveInputs merges provided against the document's declared inputs:
// required inputs without a provided value are a terminal error (spec §4.1
// "required input missing" is a load-time failure, not a node failure);
// everything else falls back to its declared default.
func resolveInputs(doc *document.Document, provided map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(doc.Inputs))
	for name, decl := range doc.Inputs {
		if v, ok := provided[name]; ok {
			resolved[name] = v
			continue
		}
		if decl.Required {
			return nil, fmt.Errorf("%w: %q", models.ErrInputNotFound, name)
		}
		resolved[name] = decl.Default
	}
	// Inputs not declared by the document are passed through as-is rather
	// than silently dropped, so a caller's extra value is still visible to
	// "{{ inputs.* }}" references even though the validator never checked it.
	for name, v := range provided {
		if _, declared := doc.Inputs[name]; !declared {
			resolved[name] = v
		}
	}
	return resolved, nil
}
