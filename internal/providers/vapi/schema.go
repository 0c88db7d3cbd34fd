package vapi

import (
	"strings"

	"provisioner/internal/domain"
)

const leadDataOutput = "lead_data"

// OutputSchema turns a channel's output fields into the structured output the
// agent fills at the end of each call. Nil when the channel defines no fields.
func OutputSchema(ch domain.MessagingChannel) []StructuredOutput {
	if len(ch.Fields) == 0 {
		return nil
	}
	s := Schema{Type: "object", Properties: make(map[string]Property, len(ch.Fields))}
	for _, f := range ch.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		p := Property{Type: jsonType(f.Type), Description: f.Label}
		if len(f.Options) > 0 {
			p.Type = "string"
			p.Enum = append([]string(nil), f.Options...)
		}
		s.Properties[name] = p
		if f.Required {
			s.Required = append(s.Required, name)
		}
	}
	desc := "Dati raccolti durante la chiamata"
	if ch.Example != "" {
		desc += ". Esempio: " + ch.Example
	}
	return []StructuredOutput{{Name: leadDataOutput, Description: desc, Schema: s}}
}

func jsonType(t domain.FieldType) string {
	switch t {
	case domain.FieldNumber:
		return "number"
	case domain.FieldBoolean:
		return "boolean"
	default:
		return "string"
	}
}

func responseMode(m domain.ResponseMode) string {
	if m == domain.ResponseMissedCallOnly {
		return "missed-call"
	}
	return "immediate"
}
