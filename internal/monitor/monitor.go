package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// PurchaseSchema describes the JSON body accepted by POST /purchase.
const PurchaseSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "PurchaseRequest",
	"type": "object",
	"properties": {
		"amount": {
			"type": ["string", "number"],
			"pattern": "^[0-9]+(\\.[0-9]+)?$"
		},
		"currency": { "type": "string", "pattern": "^[A-Za-z]{3}$" },
		"description": { "type": "string", "maxLength": 255 },
		"email": { "type": "string", "format": "email" },
		"payment_token": { "type": "string" },
		"address": {
			"type": "object",
			"properties": {
				"name": { "type": "string" },
				"address1": { "type": "string" },
				"address2": { "type": "string" },
				"city": { "type": "string" },
				"state": { "type": "string" },
				"country": { "type": "string" },
				"zip": { "type": "string" },
				"phone": { "type": "string" }
			}
		},
		"credit_card": {
			"type": "object",
			"properties": {
				"first_name": { "type": "string" },
				"last_name": { "type": "string" },
				"number": { "type": "string" },
				"month": { "type": "string" },
				"year": { "type": "string" },
				"verification_value": { "type": "string" },
				"type": { "type": "string" }
			},
			"required": ["number"]
		}
	},
	"required": ["amount"]
}`

// ContractMonitor validates incoming requests against a JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor loads and compiles the schema at schemaPath, which is
// absolute or relative to the working directory.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + schemaPath))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", schemaPath, err)
	}
	return &ContractMonitor{schema: schema}, nil
}

func NewContractMonitorFromString(schema string) (*ContractMonitor, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("error compiling schema: %w", err)
	}
	return &ContractMonitor{schema: compiled}, nil
}

// NewPurchaseMonitor validates against PurchaseSchema.
func NewPurchaseMonitor() (*ContractMonitor, error) {
	return NewContractMonitorFromString(PurchaseSchema)
}

// Validate validates the given request body against the loaded JSON schema.
// It returns true if valid, or false and a list of validation errors if invalid.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return false, errors, nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
