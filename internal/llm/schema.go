package llm

import (
	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects a closed JSON schema for T. Field descriptions come
// from `jsonschema_description` tags.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
