package scanning

import (
	"encoding/json"
	"fmt"
)

const invoicePromptTemplate = `You are an intelligent OCR extraction agent capable of understanding and processing invoices written in any language.
Given the image of an invoice, extract all relevant information in structured JSON format.
The JSON object must use this JSON schema:
%s
If a field cannot be found in the invoice, return it as null instead of omitting it.
Focus on clarity and accuracy, and ignore irrelevant text such as watermarks, headers, or decorative elements.
Return the final result strictly as a single JSON object, with no text before or after it.`

// BuildPrompt composes the extraction instruction around the given JSON
// schema. The output depends only on the schema.
func BuildPrompt(schema map[string]any) (string, error) {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}
	return fmt.Sprintf(invoicePromptTemplate, b), nil
}
