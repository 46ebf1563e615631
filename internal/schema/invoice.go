package schema

// LineItem is one row of an invoice. Every field is optional; a field the
// model could not find is nil and encodes as JSON null.
type LineItem struct {
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	TotalPrice  *float64 `json:"total_price"`
}

// InvoiceData is the structured result of one extraction attempt.
// It is built once by Validator.Validate and treated as read-only afterwards.
type InvoiceData struct {
	InvoiceNumber   *string    `json:"invoice_number"`
	InvoiceDate     *string    `json:"invoice_date"` // opaque text, not parsed
	DueDate         *string    `json:"due_date"`     // opaque text, not parsed
	BillingAddress  *string    `json:"billing_address"`
	ShippingAddress *string    `json:"shipping_address"`
	VendorName      *string    `json:"vendor_name"`
	CustomerName    *string    `json:"customer_name"`
	LineItems       []LineItem `json:"line_items"` // document order
	Subtotal        *float64   `json:"subtotal"`
	Tax             *float64   `json:"tax"`
	TotalAmount     *float64   `json:"total_amount"`
	Currency        *string    `json:"currency"`
}

type fieldType string

const (
	textField   fieldType = "string"
	numberField fieldType = "number"
	itemsField  fieldType = "array"
)

type field struct {
	name        string
	kind        fieldType
	description string
}

var lineItemFields = []field{
	{"description", textField, "A brief description of the product or service provided."},
	{"quantity", numberField, "The number of units of the product or service."},
	{"unit_price", numberField, "The price per unit of the product or service."},
	{"total_price", numberField, "The total price for the line item, calculated as quantity × unit price."},
}

var invoiceFields = []field{
	{"invoice_number", textField, "The unique identifier or reference number of the invoice."},
	{"invoice_date", textField, "The date when the invoice was issued."},
	{"due_date", textField, "The payment due date."},
	{"billing_address", textField, "The address of the customer who is being billed."},
	{"shipping_address", textField, "The address where the goods/services are to be delivered."},
	{"vendor_name", textField, "The name of the company or individual issuing the invoice."},
	{"customer_name", textField, "The name of the person or organization being billed."},
	{"line_items", itemsField, "A list of items described in the invoice."},
	{"subtotal", numberField, "The sum of all line item totals before taxes or additional fees."},
	{"tax", numberField, "The tax amount applied to the subtotal."},
	{"total_amount", numberField, "The final total to be paid including subtotal and taxes."},
	{"currency", textField, "The currency in which the invoice is issued (e.g., USD, EUR)."},
}
