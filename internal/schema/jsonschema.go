package schema

// InvoiceJSONSchema returns the JSON Schema (draft 2020-12 subset) for
// InvoiceData as a generic map. It is embedded in the prompt sent to the model
// and compiled locally to validate what comes back.
//
// A fresh map is returned on every call so callers may modify it.
func InvoiceJSONSchema() map[string]any {
	props := properties(invoiceFields)
	props["line_items"] = map[string]any{
		"type":        []any{"array", "null"},
		"description": describe(invoiceFields, "line_items"),
		"items":       LineItemJSONSchema(),
		"default":     nil,
	}
	return map[string]any{
		"title":      "InvoiceData",
		"type":       "object",
		"properties": props,
	}
}

// LineItemJSONSchema returns the schema for a single line item.
func LineItemJSONSchema() map[string]any {
	return map[string]any{
		"title":      "LineItem",
		"type":       "object",
		"properties": properties(lineItemFields),
	}
}

func properties(fields []field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.kind == itemsField {
			continue
		}
		props[f.name] = map[string]any{
			"type":        []any{string(f.kind), "null"},
			"description": f.description,
			"default":     nil,
		}
	}
	return props
}

func describe(fields []field, name string) string {
	for _, f := range fields {
		if f.name == name {
			return f.description
		}
	}
	return ""
}
