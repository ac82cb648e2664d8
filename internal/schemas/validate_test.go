package schemas

import (
	"errors"
	"testing"
)

func TestValidateUsecaseEntry_Valid(t *testing.T) {
	entry := `{
		"title": "Automated invoice matching",
		"description": "Match incoming invoices to purchase orders automatically.",
		"impact_assessment": "Reduces manual effort",
		"complexity_score": "Medium",
		"category": "automation",
		"estimated_roi": "High",
		"risk_level": "Low"
	}`

	if err := ValidateUsecaseEntry(entry); err != nil {
		t.Errorf("ValidateUsecaseEntry() = %v, want nil", err)
	}
}

func TestValidateUsecaseEntry_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"missing title", `{"description": "d", "complexity_score": "Low"}`},
		{"empty title", `{"title": "", "description": "d", "complexity_score": "Low"}`},
		{"missing description", `{"title": "t", "complexity_score": "Low"}`},
		{"unknown complexity label", `{"title": "t", "description": "d", "complexity_score": "Severe"}`},
		{"numeric complexity", `{"title": "t", "description": "d", "complexity_score": 5}`},
		{"not an object", `["a", "b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsecaseEntry(tt.entry)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if len(ve.Errors) == 0 {
				t.Error("ValidationError has no field errors")
			}
		})
	}
}
