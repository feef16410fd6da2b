package scan

import "strings"

// sectorVocabulary is an ordered list of domain keyword sets. The first
// vocabulary with any keyword contained in the lowercased document wins.
type sectorVocabulary struct {
	sector   string
	keywords []string
}

var sectorVocabularies = []sectorVocabulary{
	{SectorMedical, []string{"patient", "diagnosis", "clinic"}},
	{SectorLegal, []string{"contract", "agreement", "court"}},
	{SectorInsurance, []string{"policy", "premium", "claim"}},
	{SectorFinancial, []string{"invoice", "balance", "payment"}},
}

// classifySector assigns a single sector label by case-insensitive keyword
// containment. No match yields "General".
func classifySector(text string) string {
	doc := strings.ToLower(text)
	for _, v := range sectorVocabularies {
		for _, kw := range v.keywords {
			if strings.Contains(doc, kw) {
				return v.sector
			}
		}
	}
	return SectorGeneral
}
