package intake

import (
	"encoding/json"
	"testing"
)

func TestMapper_Contact(t *testing.T) {
	m := newTestMapper(t)

	rawRequest, _ := json.Marshal(map[string]any{
		"q1_name":   map[string]any{"first": "Jane", "last": "Doe"},
		"q19_phone": map[string]any{"area": "602", "phone": "5550100"},
	})

	tests := []struct {
		name    string
		source  SourceType
		payload map[string]any
		want    Contact
	}{
		{
			name:   "widget nested contact",
			source: SourceWidget,
			payload: map[string]any{
				"contact": map[string]any{
					"first_name": " Jane ",
					"last_name":  "Doe",
					"email":      "jane@example.com",
					"phone":      "(602) 555-0100",
				},
			},
			want: Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "(602) 555-0100"},
		},
		{
			name:    "referral top level",
			source:  SourceReferral,
			payload: map[string]any{"firstName": "Sam", "email": "sam@example.com"},
			want:    Contact{FirstName: "Sam", Email: "sam@example.com"},
		},
		{
			name:    "jotform compound widgets in rawRequest",
			source:  SourceJotForm,
			payload: map[string]any{"q2_email": "jane@example.com", "rawRequest": string(rawRequest)},
			want:    Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "6025550100"},
		},
		{
			name:    "google ads columns",
			source:  SourceGoogleAds,
			payload: googleAdsDepressionPayload(),
			want:    Contact{FirstName: "Jane", LastName: "Doe"},
		},
		{
			name:    "full name with several parts",
			source:  SourceAPI,
			payload: map[string]any{"full_name": "Mary Ann van Dyke", "phone_number": 6025550100},
			want:    Contact{FirstName: "Mary", LastName: "Ann van Dyke", Phone: "6025550100"},
		},
		{
			name:    "nothing present",
			source:  SourceManual,
			payload: map[string]any{"zip_code": "85004"},
			want:    Contact{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Contact(tt.source, tt.payload)
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestMapper_ContactDoesNotChangeIntake(t *testing.T) {
	m := newTestMapper(t)
	p := widgetDepressionPayload()
	before, err := m.Map(SourceWidget, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p["contact"] = map[string]any{"first_name": "Jane", "email": "jane@example.com"}
	after, err := m.Map(SourceWidget, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before.ZipCode != after.ZipCode || len(before.Conditions) != len(after.Conditions) {
		t.Errorf("contact fields changed the intake: %+v vs %+v", before, after)
	}
}
