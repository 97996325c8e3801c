package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func weatherTool() Definition {
	return Definition{
		Name:        "get_weather",
		Description: "Get the weather for a city",
		Category:    "info",
		Parameters: []Parameter{
			{Name: "city", Type: TypeString, Description: "City name", Required: true},
			{Name: "unit", Type: TypeString, Enum: []string{"celsius", "fahrenheit"}, Default: "celsius"},
			{Name: "days", Type: TypeInteger},
			{Name: "fields", Type: TypeArray},
		},
		Handler: func(ctx context.Context, args map[string]any, _ AppContext) (any, error) {
			return "sunny", nil
		},
	}
}

func TestGeminiDeclarations(t *testing.T) {
	decls := GeminiDeclarations([]Definition{weatherTool(), echoTool("echo")})

	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}

	w := decls[0]
	if w.Name != "get_weather" || w.Parameters == nil {
		t.Fatalf("unexpected declaration %+v", w)
	}
	if w.Parameters.Type != genai.TypeObject {
		t.Errorf("expected object, got %s", w.Parameters.Type)
	}
	if len(w.Parameters.Required) != 1 || w.Parameters.Required[0] != "city" {
		t.Errorf("unexpected required %v", w.Parameters.Required)
	}
	if w.Parameters.Properties["days"].Type != genai.TypeInteger {
		t.Errorf("expected integer days")
	}
	if got := w.Parameters.Properties["unit"].Enum; len(got) != 2 {
		t.Errorf("expected enum to survive, got %v", got)
	}
	if w.Parameters.Properties["fields"].Items == nil {
		t.Error("expected array items schema")
	}

	if decls[1].Parameters != nil {
		t.Error("expected no parameters for parameterless tool")
	}
}

func TestOpenAITools(t *testing.T) {
	out := OpenAITools([]Definition{weatherTool()})
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}

	data, err := json.Marshal(out[0])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded["type"] != "function" || decoded["name"] != "get_weather" {
		t.Errorf("unexpected envelope %v", decoded)
	}
	params := decoded["parameters"].(map[string]any)
	if params["type"] != "object" {
		t.Errorf("expected object parameters, got %v", params["type"])
	}
	props := params["properties"].(map[string]any)
	unit := props["unit"].(map[string]any)
	if unit["default"] != "celsius" {
		t.Errorf("expected default to survive, got %v", unit["default"])
	}
}

func TestJSONSchemaTools(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(weatherTool())

	out := r.ToJSONSchema()
	if len(out) != 1 || out[0].Category != "info" {
		t.Fatalf("unexpected export %+v", out)
	}
	if len(out[0].InputSchema.Properties) != 4 {
		t.Errorf("expected 4 properties, got %d", len(out[0].InputSchema.Properties))
	}
}

func TestConvertersAreDeterministic(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(weatherTool(), echoTool("echo"))

	a, _ := json.Marshal(r.ToOpenAIFormat())
	b, _ := json.Marshal(r.ToOpenAIFormat())
	if string(a) != string(b) {
		t.Error("OpenAI export is not deterministic")
	}

	g, _ := json.Marshal(r.ToGeminiFormat())
	if !strings.Contains(string(g), "get_weather") || !strings.Contains(string(g), "echo") {
		t.Errorf("gemini export lost a tool: %s", g)
	}
}
