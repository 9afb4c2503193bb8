package overlay

import "strings"

// disclaimers maps a two-letter jurisdiction code to the literal text printed
// at the bottom of the first page. Treat as read-only.
var disclaimers = map[string]string{
	"CA": "California: This document was shared for the sole purpose of evaluating a commercial financing request. " +
		"The recipient must provide the disclosures required by the California Financing Law before consummating the transaction.",
	"NY": "New York: This document was shared for the sole purpose of evaluating a commercial financing request. " +
		"The recipient must provide the disclosures required by the New York Commercial Finance Disclosure Law.",
	"UT": "Utah: This document was shared for the sole purpose of evaluating a commercial financing request. " +
		"The recipient must be registered and provide the disclosures required by the Utah Commercial Financing Registration and Disclosure Act.",
	"VA": "Virginia: This document was shared for the sole purpose of evaluating a sales-based financing request. " +
		"The recipient must be registered and provide the disclosures required by Virginia law.",
	"GA": "Georgia: This document was shared for the sole purpose of evaluating a commercial financing request. " +
		"The recipient must provide the disclosures required by Georgia law.",
	"CT": "Connecticut: This document was shared for the sole purpose of evaluating a commercial financing request. " +
		"The recipient must be registered and provide the disclosures required by Connecticut law.",
	"FL": "Florida: This document was shared for the sole purpose of evaluating a commercial financing request. " +
		"The recipient must provide the disclosures required by the Florida Commercial Financing Disclosure Law.",
	"TX": "Texas: This document was shared for the sole purpose of evaluating a commercial sales-based financing request. " +
		"The recipient must be registered as required by Texas law.",
}

// Disclaimer looks up the text for a jurisdiction code in any case.
func Disclaimer(state string) (string, bool) {
	text, ok := disclaimers[strings.ToUpper(strings.TrimSpace(state))]
	return text, ok
}

// WrapText breaks text into lines of at most width runes at word boundaries.
// Words longer than width stay on their own line.
func WrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var (
		lines []string
		cur   strings.Builder
	)
	for _, w := range words {
		if cur.Len() > 0 && len([]rune(cur.String()))+1+len([]rune(w)) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	return append(lines, cur.String())
}
