package extract

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/zuzya/try.idea-validator/internal/util"
)

var schemaCache sync.Map // reflect.Type -> *util.Schema

// Schema returns the JSON schema derived from T's json tags. Schemas are
// cached per type and must be treated as read-only.
func Schema[T any]() *util.Schema {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if s, ok := schemaCache.Load(t); ok {
		return s.(*util.Schema)
	}
	var zero T
	s, _ := schemaCache.LoadOrStore(t, util.SchemaOf(zero))
	return s.(*util.Schema)
}

// FormatHint renders an instruction telling the model to answer with a JSON
// object shaped like T. Stages append it to their user prompts.
func FormatHint[T any]() string {
	b, err := json.MarshalIndent(Schema[T](), "", "  ")
	if err != nil {
		return "Respond with a single JSON object."
	}
	return "Respond with a single JSON object (no commentary) matching this JSON schema:\n" + string(b)
}
