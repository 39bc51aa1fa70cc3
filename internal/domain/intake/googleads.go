package intake

import (
	"strings"
	"time"
)

// GoogleAdsAdapter maps lead-form webhook deliveries. Answers arrive as a
// column list:
//
//	{"lead_id": "...", "user_column_data": [
//	  {"column_id": "POSTAL_CODE", "string_value": "85004"},
//	  {"column_name": "What conditions?", "string_value": "Depression"}]}
//
// Each column is indexed under both its id and its name, then resolved with
// the same aliases as the form adapter.
type GoogleAdsAdapter struct {
	n *Normalizer
}

func NewGoogleAdsAdapter(n *Normalizer) *GoogleAdsAdapter {
	return &GoogleAdsAdapter{n: n}
}

// Standard column ids that do not match a vocabulary alias by themselves.
var googleAdsColumns = map[string]string{
	"POSTAL_CODE":  "zip_code",
	"PHONE_NUMBER": "phone",
	"FIRST_NAME":   "first_name",
	"LAST_NAME":    "last_name",
}

func (a *GoogleAdsAdapter) Adapt(p map[string]any, submittedAt time.Time) (Intake, error) {
	return a.n.assemble(a.n.flatRaw(googleAdsIndex(p)), submittedAt)
}

func googleAdsIndex(p map[string]any) map[string]any {
	idx := make(map[string]any)
	columns, _ := p["user_column_data"].([]any)
	for _, c := range columns {
		col, ok := c.(map[string]any)
		if !ok {
			continue
		}
		value, ok := col["string_value"]
		if !ok {
			continue
		}
		for _, k := range []string{"column_id", "column_name"} {
			name, _ := col[k].(string)
			if name == "" {
				continue
			}
			if logical, ok := googleAdsColumns[strings.ToUpper(name)]; ok {
				name = logical
			}
			if _, exists := idx[fieldKey(name)]; !exists {
				idx[fieldKey(name)] = value
			}
		}
	}
	if len(idx) == 0 {
		// Test deliveries and manual replays sometimes send the answers flat.
		idx = indexPayload(p)
	}
	return idx
}
