package fsstore

import (
	"encoding/json"
	"fmt"

	"github.com/ggoodman/inspector-proxy-go/updates"
	"github.com/invopop/jsonschema"
)

// ManifestSchema returns the JSON Schema describing update.json, for tools
// that install updates into the directory.
func ManifestSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&updates.Update{})
	s.Title = "Update manifest"
	s.Description = "Metadata of one stored update, kept in <root>/<id>/" + ManifestName + "."

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest schema: %w", err)
	}
	return b, nil
}
