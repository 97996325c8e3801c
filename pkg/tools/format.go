package tools

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// FunctionDeclaration is the Gemini function-calling schema element.
type FunctionDeclaration = genai.FunctionDeclaration

// OpenAITool is one entry of an OpenAI Realtime session "tools" array.
type OpenAITool struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// SchemaTool is the generic export: a tool with a JSON-Schema input.
type SchemaTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Category    string             `json:"category,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// GeminiDeclarations converts definitions to Gemini function declarations.
// Tools without parameters carry no Parameters schema.
func GeminiDeclarations(defs []Definition) []*FunctionDeclaration {
	decls := make([]*FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decl := &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
		}
		if len(def.Parameters) > 0 {
			decl.Parameters = geminiObject(def.Parameters)
		}
		decls = append(decls, decl)
	}
	return decls
}

func geminiObject(params []Parameter) *genai.Schema {
	obj := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params)),
	}
	for _, p := range params {
		prop := &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
			Default:     p.Default,
		}
		if p.Type == TypeArray {
			prop.Items = &genai.Schema{Type: geminiType(itemType(p))}
		}
		obj.Properties[p.Name] = prop
		if p.Required {
			obj.Required = append(obj.Required, p.Name)
		}
	}
	return obj
}

func geminiType(t ParamType) genai.Type {
	switch t {
	case TypeNumber:
		return genai.TypeNumber
	case TypeInteger:
		return genai.TypeInteger
	case TypeBoolean:
		return genai.TypeBoolean
	case TypeArray:
		return genai.TypeArray
	case TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// OpenAITools converts definitions to the OpenAI Realtime tools array.
func OpenAITools(defs []Definition) []OpenAITool {
	out := make([]OpenAITool, 0, len(defs))
	for _, def := range defs {
		out = append(out, OpenAITool{
			Type:        "function",
			Name:        def.Name,
			Description: def.Description,
			Parameters:  ObjectSchema(def.Parameters),
		})
	}
	return out
}

// JSONSchemaTools converts definitions to the generic JSON-Schema form.
func JSONSchemaTools(defs []Definition) []SchemaTool {
	out := make([]SchemaTool, 0, len(defs))
	for _, def := range defs {
		out = append(out, SchemaTool{
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			InputSchema: ObjectSchema(def.Parameters),
		})
	}
	return out
}

// ObjectSchema builds a JSON-Schema object whose properties are params.
// An empty parameter list yields an object with no properties.
func ObjectSchema(params []Parameter) *jsonschema.Schema {
	obj := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, p := range params {
		prop := &jsonschema.Schema{
			Type:        string(normalizeType(p.Type)),
			Description: p.Description,
		}
		for _, e := range p.Enum {
			prop.Enum = append(prop.Enum, e)
		}
		if p.Default != nil {
			if raw, err := json.Marshal(p.Default); err == nil {
				prop.Default = raw
			}
		}
		if p.Type == TypeArray {
			prop.Items = &jsonschema.Schema{Type: string(itemType(p))}
		}
		obj.Properties[p.Name] = prop
		if p.Required {
			obj.Required = append(obj.Required, p.Name)
		}
	}
	return obj
}

func itemType(p Parameter) ParamType {
	return normalizeType(p.Items)
}

func normalizeType(t ParamType) ParamType {
	if t == "" {
		return TypeString
	}
	return t
}
