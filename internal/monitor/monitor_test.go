package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewContractMonitor(t *testing.T) {
	testSchemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "TestSchema",
		"type": "object",
		"properties": { "amount": { "type": "string" } },
		"required": ["amount"]
	}`
	schemaDir := t.TempDir()
	schemaFile := filepath.Join(schemaDir, "test_schema.json")
	if err := os.WriteFile(schemaFile, []byte(testSchemaContent), 0644); err != nil {
		t.Fatalf("Failed to write test schema file: %v", err)
	}

	t.Run("SuccessfulLoad", func(t *testing.T) {
		cm, err := NewContractMonitor(schemaFile)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cm == nil || cm.schema == nil {
			t.Fatal("Expected compiled ContractMonitor, got nil")
		}
	})

	t.Run("SchemaFileNotFound", func(t *testing.T) {
		_, err := NewContractMonitor(filepath.Join(schemaDir, "missing.json"))
		if err == nil {
			t.Fatal("Expected error for non-existent schema, got nil")
		}
		if !strings.Contains(err.Error(), "error loading or compiling schema") {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("InvalidSchemaSyntax", func(t *testing.T) {
		invalidSchemaFile := filepath.Join(schemaDir, "invalid_schema.json")
		if err := os.WriteFile(invalidSchemaFile, []byte("{invalid_json"), 0644); err != nil {
			t.Fatalf("Failed to write invalid test schema file: %v", err)
		}
		if _, err := NewContractMonitor(invalidSchemaFile); err == nil {
			t.Fatal("Expected error for invalid schema syntax, got nil")
		}
	})

	t.Run("InvalidSchemaString", func(t *testing.T) {
		if _, err := NewContractMonitorFromString("{"); err == nil {
			t.Fatal("Expected error for invalid schema string, got nil")
		}
	})
}

func TestPurchaseMonitor_Validate(t *testing.T) {
	cm, err := NewPurchaseMonitor()
	if err != nil {
		t.Fatalf("Failed to compile purchase schema: %v", err)
	}

	tests := []struct {
		name          string
		payload       string
		expectValid   bool
		expectErrors  bool
		errorContains []string
	}{
		{
			name:        "ValidCardPurchase",
			payload:     `{"amount": "19.90", "currency": "USD", "credit_card": {"first_name": "Ada", "last_name": "Lovelace", "number": "4111111111111111", "month": "12", "year": "2030", "verification_value": "123"}}`,
			expectValid: true,
		},
		{
			name:        "NumericAmount",
			payload:     `{"amount": 10}`,
			expectValid: true,
		},
		{
			name:          "MissingAmount",
			payload:       `{"currency": "USD"}`,
			expectErrors:  true,
			errorContains: []string{"amount is required"},
		},
		{
			name:          "BadCurrency",
			payload:       `{"amount": "1.00", "currency": "dollars"}`,
			expectErrors:  true,
			errorContains: []string{"currency"},
		},
		{
			name:          "BadEmail",
			payload:       `{"amount": "1.00", "email": "not-an-email"}`,
			expectErrors:  true,
			errorContains: []string{"email", "Does not match format 'email'"},
		},
		{
			name:          "CardWithoutNumber",
			payload:       `{"amount": "1.00", "credit_card": {"first_name": "Ada"}}`,
			expectErrors:  true,
			errorContains: []string{"number is required"},
		},
		{
			name:         "MalformedJSON",
			payload:      `{"amount": "1.00",`,
			expectErrors: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, validationErrs, funcErr := cm.Validate([]byte(tt.payload))

			if tt.expectErrors {
				if funcErr == nil && len(validationErrs) == 0 {
					t.Errorf("Expected errors, but got none")
				}
			} else {
				if funcErr != nil {
					t.Errorf("Expected no functional error, got %v", funcErr)
				}
				if len(validationErrs) > 0 {
					t.Errorf("Expected no validation errors, got %v", validationErrs)
				}
			}

			if valid != tt.expectValid {
				t.Errorf("Expected valid=%v, got valid=%v. ValidationErrors: %v, FuncErr: %v", tt.expectValid, valid, validationErrs, funcErr)
			}

			combined := strings.Join(validationErrs, "; ")
			for _, ec := range tt.errorContains {
				if !strings.Contains(combined, ec) {
					t.Errorf("Expected errors to contain '%s', but got: %s", ec, combined)
				}
			}
		})
	}
}

func TestFormatErrors(t *testing.T) {
	tests := []struct {
		name           string
		errors         []string
		expectedOutput string
	}{
		{"NoErrors", []string{}, ""},
		{"SingleError", []string{"amount is required"}, "Validation errors: amount is required"},
		{"MultipleErrors", []string{"Error 1", "Error 2"}, "Validation errors: Error 1; Error 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if output := FormatErrors(tt.errors); output != tt.expectedOutput {
				t.Errorf("Expected '%s', got '%s'", tt.expectedOutput, output)
			}
		})
	}
}
