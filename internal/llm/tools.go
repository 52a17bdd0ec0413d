package llm

import (
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"google.golang.org/genai"
)

// FunctionDeclarations converts the command catalog into Gemini tool
// declarations.
func FunctionDeclarations(specs []commands.Spec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  objectSchema(s.Params),
		})
	}
	return decls
}

func objectSchema(params []commands.Param) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params)),
	}
	for _, p := range params {
		schema.Properties[p.Name] = paramSchema(p)
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}

func paramSchema(p commands.Param) *genai.Schema {
	switch p.Kind {
	case commands.KindArray:
		return &genai.Schema{
			Type:        genai.TypeArray,
			Description: p.Description,
			Items:       objectSchema(p.Items),
		}
	case commands.KindNumber:
		return &genai.Schema{Type: genai.TypeNumber, Description: p.Description}
	case commands.KindInteger:
		return &genai.Schema{Type: genai.TypeInteger, Description: p.Description}
	default:
		return &genai.Schema{Type: genai.TypeString, Description: p.Description, Enum: p.Enum}
	}
}
