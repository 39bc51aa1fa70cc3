package intake

import (
	"strings"
)

// Contact is the submitter's identity. It never enters Intake and plays no
// part in scoring; the lead service encrypts it before storage.
type Contact struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name,omitempty" validate:"max=100"`
	Email     string `json:"email,omitempty" validate:"required_without=Phone,omitempty,email,max=254"`
	Phone     string `json:"phone,omitempty" validate:"required_without=Email,omitempty,min=7,max=32"`
}

// Contact pulls identity fields out of payload using the same key
// resolution the source's adapter applies to clinical fields.
func (m *Mapper) Contact(source SourceType, payload map[string]any) Contact {
	var idx map[string]any
	switch source {
	case SourceJotForm:
		idx = jotformIndex(payload)
	case SourceGoogleAds:
		idx = googleAdsIndex(payload)
	default:
		idx = indexPayload(payload)
		if nested, ok := payload["contact"].(map[string]any); ok {
			for k, v := range indexPayload(nested) {
				idx[k] = v
			}
		}
	}
	return m.n.contact(idx)
}

func (n *Normalizer) contact(idx map[string]any) Contact {
	var c Contact
	// Form services send compound name and phone widgets as objects:
	// {"first": "Jane", "last": "Doe"} and {"area": "602", "phone": "5550100"}.
	if v, ok := n.lookup(idx, "full_name"); ok {
		switch x := v.(type) {
		case map[string]any:
			c.FirstName, _ = asString(x["first"])
			c.LastName, _ = asString(x["last"])
		default:
			full, _ := asString(x)
			c.FirstName, c.LastName = splitName(full)
		}
	}
	if s := n.lookupString(idx, "first_name"); s != "" {
		c.FirstName = s
	}
	if s := n.lookupString(idx, "last_name"); s != "" {
		c.LastName = s
	}
	c.Email = strings.TrimSpace(n.lookupString(idx, "email"))
	if v, ok := n.lookup(idx, "phone"); ok {
		c.Phone = phoneString(v)
	}
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	return c
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func phoneString(v any) string {
	if m, ok := v.(map[string]any); ok {
		if full, ok := asString(m["full"]); ok && full != "" {
			return strings.TrimSpace(full)
		}
		area, _ := asString(m["area"])
		number, _ := asString(m["phone"])
		return strings.TrimSpace(area + number)
	}
	s, _ := asString(v)
	return strings.TrimSpace(s)
}
