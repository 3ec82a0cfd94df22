package main

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDraftAgreement(t *testing.T) {
	terms := map[string]string{"deposit": "500", "duration": "12 months"}

	t.Run("uses the model draft", func(t *testing.T) {
		stub := &stubGenerator{response: "LEASE AGREEMENT\n1. Rent..."}
		got := draftAgreement(context.Background(), stub, "lease_agreement", "Sunny room", 650, terms)
		if got != stub.response {
			t.Errorf("draft = %q", got)
		}
		if !strings.Contains(stub.prompts[0], "Lease Agreement") {
			t.Error("prompt should name the agreement kind")
		}
		if !strings.Contains(stub.prompts[0], "deposit: 500") {
			t.Error("prompt should carry the agreed terms")
		}
	})

	t.Run("shared room names a roommate agreement", func(t *testing.T) {
		stub := &stubGenerator{response: "ROOMMATE AGREEMENT"}
		draftAgreement(context.Background(), stub, "roommate_agreement", "Shared loft", 400, nil)
		if !strings.Contains(stub.prompts[0], "Roommate Agreement") {
			t.Error("prompt should name the roommate agreement kind")
		}
	})

	t.Run("skeleton fallback on failure", func(t *testing.T) {
		stub := &stubGenerator{err: errors.New("unavailable")}
		got := draftAgreement(context.Background(), stub, "lease_agreement", "Sunny room", 650, terms)
		if !strings.Contains(got, "Lease Agreement") || !strings.Contains(got, "Sunny room") {
			t.Errorf("fallback draft missing basics: %q", got)
		}
		if !strings.Contains(got, "30 days written notice") {
			t.Error("fallback draft missing termination clause")
		}
	})

	t.Run("skeleton fallback without generator", func(t *testing.T) {
		got := draftAgreement(context.Background(), nil, "roommate_agreement", "Shared loft", 400, nil)
		if !strings.Contains(got, "Roommate Agreement") {
			t.Errorf("fallback draft = %q", got)
		}
	})
}
