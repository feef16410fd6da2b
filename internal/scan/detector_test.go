package scan

import (
	"strings"
	"testing"
)

// TestScanClean verifies that text with no pattern matches yields an empty
// entity list and the General sector.
func TestScanClean(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "plain prose", text: "The quick brown fox jumps over the lazy dog."},
		{name: "numbers too short", text: "call 12345 or 99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Scan(tt.text)
			if len(res.Entities) != 0 {
				t.Errorf("expected no entities, got %d: %+v", len(res.Entities), res.Entities)
			}
			// Non-nil so API responses carry "entities":[] instead of null.
			if res.Entities == nil {
				t.Error("Entities is nil, want empty slice")
			}
			if res.Sector != SectorGeneral {
				t.Errorf("expected sector %q, got %q", SectorGeneral, res.Sector)
			}
			if res.Sensitive {
				t.Error("clean text should not be sensitive")
			}
		})
	}
}

// TestScanEmail verifies the email rule reports the matched substring at its
// byte offset.
func TestScanEmail(t *testing.T) {
	text := "reach me at jane.doe@example.org if needed"
	want := "jane.doe@example.org"
	wantOffset := strings.Index(text, want)

	res := Scan(text)

	var found *Entity
	for i := range res.Entities {
		if res.Entities[i].Category == CategoryEmail {
			found = &res.Entities[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no %q entity in %+v", CategoryEmail, res.Entities)
	}
	if found.Text != want {
		t.Errorf("matched text = %q, want %q", found.Text, want)
	}
	if found.Offset != wantOffset {
		t.Errorf("offset = %d, want %d", found.Offset, wantOffset)
	}
	if !res.Sensitive {
		t.Error("text with an email should be sensitive")
	}
}

// TestScanEmailAndSSN is the end-to-end detection scenario: both the email
// and the SSN are reported with their exact literals.
func TestScanEmailAndSSN(t *testing.T) {
	text := "Contact me at a@b.com, SSN 123-45-6789"
	res := Scan(text)

	byCategory := make(map[string]string)
	for _, e := range res.Entities {
		if _, ok := byCategory[e.Category]; !ok {
			byCategory[e.Category] = e.Text
		}
	}

	if got := byCategory[CategoryEmail]; got != "a@b.com" {
		t.Errorf("%s = %q, want %q", CategoryEmail, got, "a@b.com")
	}
	if got := byCategory[CategorySSN]; got != "123-45-6789" {
		t.Errorf("%s = %q, want %q", CategorySSN, got, "123-45-6789")
	}
}

// TestScanDedup verifies the (offset, category) dedup rule: the same literal
// at two offsets yields two entities, and two categories matching at one
// offset are both retained.
func TestScanDedup(t *testing.T) {
	t.Run("same literal two offsets", func(t *testing.T) {
		text := "a@b.com then again a@b.com"
		res := Scan(text)
		var emails []Entity
		for _, e := range res.Entities {
			if e.Category == CategoryEmail {
				emails = append(emails, e)
			}
		}
		if len(emails) != 2 {
			t.Fatalf("expected 2 email entities, got %d", len(emails))
		}
		if emails[0].Offset == emails[1].Offset {
			t.Error("expected distinct offsets for repeated literal")
		}
	})

	t.Run("two categories same offset", func(t *testing.T) {
		// A passport-shaped token is also DEA-shaped; both are retained.
		text := "doc AB1234567 end"
		res := Scan(text)
		categories := make(map[string]bool)
		for _, e := range res.Entities {
			if e.Text == "AB1234567" {
				categories[e.Category] = true
			}
		}
		if !categories[CategoryPassport] || !categories[CategoryDEA] {
			t.Errorf("expected both passport and DEA categories, got %+v", res.Entities)
		}
	})
}

// TestScanRuleOrder verifies entities preserve rule-evaluation order, not
// offset order: the email rule runs before the SSN rule even when the SSN
// appears first in the text.
func TestScanRuleOrder(t *testing.T) {
	text := "123-45-6789 then a@b.com"
	res := Scan(text)
	if len(res.Entities) < 2 {
		t.Fatalf("expected at least 2 entities, got %+v", res.Entities)
	}
	if res.Entities[0].Category != CategoryEmail {
		t.Errorf("first entity category = %q, want %q", res.Entities[0].Category, CategoryEmail)
	}
}

// TestClassifySector covers the ordered keyword vocabularies.
func TestClassifySector(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "medical", text: "The patient presented with fever.", want: SectorMedical},
		{name: "legal", text: "This agreement is binding.", want: SectorLegal},
		{name: "insurance", text: "Your premium is due.", want: SectorInsurance},
		{name: "financial", text: "Attached is the invoice.", want: SectorFinancial},
		{name: "first match wins", text: "patient invoice", want: SectorMedical},
		{name: "case insensitive", text: "PATIENT records", want: SectorMedical},
		{name: "general", text: "hello world", want: SectorGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifySector(tt.text); got != tt.want {
				t.Errorf("classifySector(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

// TestScanSectorOnlySensitive verifies a document with a non-General sector
// but no entities is still flagged sensitive.
func TestScanSectorOnlySensitive(t *testing.T) {
	res := Scan("the patient is recovering well")
	if len(res.Entities) != 0 {
		t.Fatalf("expected no entities, got %+v", res.Entities)
	}
	if res.Sector != SectorMedical {
		t.Fatalf("sector = %q, want %q", res.Sector, SectorMedical)
	}
	if !res.Sensitive {
		t.Error("non-General sector should mark the document sensitive")
	}
}

// TestSectorModelProviderNoBundle verifies a provider without a bundle never
// hints and a detector built on it falls back to the keyword classifier.
func TestSectorModelProviderNoBundle(t *testing.T) {
	provider := NewSectorModelProvider("")
	if _, ok := provider.Hint("some text"); ok {
		t.Error("provider without bundle should not hint")
	}

	d := NewDetector(provider)
	res := d.Scan("the patient file")
	if res.Sector != SectorMedical {
		t.Errorf("sector = %q, want %q", res.Sector, SectorMedical)
	}
}

// TestFeaturize verifies the hashed bag-of-words vector is deterministic and
// resets between calls.
func TestFeaturize(t *testing.T) {
	a := make([]float32, featureDim)
	b := make([]float32, featureDim)

	featurize("alpha beta alpha", a)
	featurize("alpha beta alpha", b)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("featurize not deterministic at bucket %d", i)
		}
	}

	var total float32
	for _, v := range a {
		total += v
	}
	if total != 3 {
		t.Errorf("expected 3 token counts, got %v", total)
	}

	featurize("", a)
	for i, v := range a {
		if v != 0 {
			t.Fatalf("bucket %d not reset: %v", i, v)
		}
	}
}
