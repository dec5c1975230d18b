package observer

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var subscribeSchema = mustCompileSchema("subscribe.schema.json")

// compileSchema compiles one of the embedded protocol schemas.
func compileSchema(name string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(name, string(data))
}

func mustCompileSchema(name string) *jsonschema.Schema {
	s, err := compileSchema(name)
	if err != nil {
		panic(fmt.Sprintf("observer: compiling %s: %v", name, err))
	}
	return s
}

// validateJSON checks raw JSON against s.
func validateJSON(s *jsonschema.Schema, data []byte) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}
