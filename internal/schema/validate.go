package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaViolation is matched by every ViolationError.
var ErrSchemaViolation = errors.New("schema violation")

// ViolationError reports the first field that does not conform to the schema.
type ViolationError struct {
	Path    string // e.g. "total_amount" or "line_items[0].quantity"
	Message string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Path, e.Message)
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// LineItemPolicy decides what a malformed line item does to the document.
type LineItemPolicy string

const (
	// Strict rejects the whole document when any line item is malformed.
	Strict LineItemPolicy = "strict"
	// Tolerant drops malformed line items and keeps the rest.
	Tolerant LineItemPolicy = "tolerant"
)

// ParseLineItemPolicy parses a policy name, case-insensitively.
func ParseLineItemPolicy(s string) (LineItemPolicy, error) {
	switch LineItemPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case Strict, "":
		return Strict, nil
	case Tolerant:
		return Tolerant, nil
	default:
		return "", fmt.Errorf("unknown line item policy %q (valid: strict, tolerant)", s)
	}
}

// Validator turns the generic JSON returned by the model into InvoiceData.
// It is safe for concurrent use.
type Validator struct {
	policy   LineItemPolicy
	invoice  *jsonschema.Schema
	lineItem *jsonschema.Schema
}

// NewValidator compiles the invoice schemas.
func NewValidator(policy LineItemPolicy) (*Validator, error) {
	if policy == "" {
		policy = Strict
	}
	invoice, err := compile("invoice.json", InvoiceJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("compiling invoice schema: %w", err)
	}
	lineItem, err := compile("line_item.json", LineItemJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("compiling line item schema: %w", err)
	}
	return &Validator{policy: policy, invoice: invoice, lineItem: lineItem}, nil
}

// Policy returns the line item policy the validator applies.
func (v *Validator) Policy() LineItemPolicy {
	return v.policy
}

// Validate builds InvoiceData from doc. Numeric strings such as "12.50" are
// accepted for number fields; anything else of the wrong type fails with a
// *ViolationError. Under the Tolerant policy the violations of dropped line
// items are returned alongside the result.
func (v *Validator) Validate(doc map[string]any) (*InvoiceData, []*ViolationError, error) {
	norm := normalize(doc)

	var dropped []*ViolationError
	if v.policy == Tolerant {
		if items, ok := norm["line_items"].([]any); ok {
			kept := make([]any, 0, len(items))
			for i, item := range items {
				if err := v.lineItem.Validate(item); err != nil {
					dropped = append(dropped, violation(err, fmt.Sprintf("/line_items/%d", i)))
					continue
				}
				kept = append(kept, item)
			}
			norm["line_items"] = kept
		}
	}

	if err := v.invoice.Validate(norm); err != nil {
		return nil, dropped, violation(err, "")
	}

	b, err := json.Marshal(norm)
	if err != nil {
		return nil, dropped, fmt.Errorf("marshaling normalized invoice: %w", err)
	}
	var data InvoiceData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, dropped, fmt.Errorf("decoding invoice: %w", err)
	}
	return &data, dropped, nil
}

func compile(name string, s map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile(name)
}

// normalize copies doc, replacing numeric strings in number fields with
// float64 values. The input map is not modified.
func normalize(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	coerceNumbers(out, invoiceFields)

	if items, ok := out["line_items"].([]any); ok {
		copied := make([]any, len(items))
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				copied[i] = item
				continue
			}
			mc := make(map[string]any, len(m))
			for k, v := range m {
				mc[k] = v
			}
			coerceNumbers(mc, lineItemFields)
			copied[i] = mc
		}
		out["line_items"] = copied
	}
	return out
}

func coerceNumbers(m map[string]any, fields []field) {
	for _, f := range fields {
		if f.kind != numberField {
			continue
		}
		s, ok := m[f.name].(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}
		m[f.name] = n
	}
}

// violation reduces a jsonschema error to its first leaf cause.
func violation(err error, prefix string) *ViolationError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ViolationError{Path: fieldPath(prefix), Message: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return &ViolationError{
		Path:    fieldPath(prefix + leaf.InstanceLocation),
		Message: leaf.Message,
	}
}

// fieldPath renders a JSON pointer as "line_items[0].quantity".
func fieldPath(pointer string) string {
	var b strings.Builder
	for _, seg := range strings.Split(pointer, "/") {
		if seg == "" {
			continue
		}
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	if b.Len() == 0 {
		return "(root)"
	}
	return b.String()
}
