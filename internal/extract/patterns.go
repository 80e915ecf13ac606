package extract

import (
	"regexp"
	"strings"
)

// patternDef is one named matcher in the battery. The battery is an ordered
// slice so extraction output is deterministic.
type patternDef struct {
	name string
	re   *regexp.Regexp
}

// Pattern names, referenced by the assembler and recorded as raw signals.
const (
	sigDollarAmounts  = "dollar_amounts"
	sigHourlyRates    = "hourly_rates"
	sigMonthlyRates   = "monthly_rates"
	sigQuarterlyRates = "quarterly_rates"
	sigAnnualRates    = "annual_rates"
	sigPercentages    = "percentages"
	sigPaymentTerms   = "payment_terms"
	sigDueOnReceipt   = "due_on_receipt"
	sigDates          = "dates"
	sigMilestones     = "milestone_phases"
	sigDuration       = "contract_duration"
	sigRetainers      = "retainer_amounts"
	sigExpenseCaps    = "expense_caps"
	sigLateFees       = "late_fees"
	sigCurrencyCodes  = "currency_codes"
	sigClientName     = "client_name"
)

const amount = `[\d,]+(?:\.\d+)?`

var battery = []patternDef{
	{sigDollarAmounts, regexp.MustCompile(`\$` + amount)},
	{sigHourlyRates, regexp.MustCompile(`(?i)\$` + amount + `\s*(?:/|per\s+)\s*(?:hour|hr|hrs|hourly)`)},
	{sigMonthlyRates, regexp.MustCompile(`(?i)\$` + amount + `\s*(?:/|per\s+)\s*(?:month|mo|monthly)`)},
	{sigQuarterlyRates, regexp.MustCompile(`(?i)\$` + amount + `\s*(?:/|per\s+)\s*(?:quarter|qtr|quarterly)`)},
	{sigAnnualRates, regexp.MustCompile(`(?i)\$` + amount + `\s*(?:/|per\s+)\s*(?:year|yr|annum|annual|annually)`)},
	{sigPercentages, regexp.MustCompile(`\d+(?:\.\d+)?%`)},
	{sigPaymentTerms, regexp.MustCompile(`(?i)net\s+(\d+)(?:\s*(?:business\s+)?days?)?`)},
	{sigDueOnReceipt, regexp.MustCompile(`(?i)due\s+(?:up)?on\s+receipt`)},
	{sigDates, regexp.MustCompile(`(?i)\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+\d{1,2},?\s+\d{4}`)},
	{sigMilestones, regexp.MustCompile(`(?i)(?:phase|milestone|deliverable|stage)\s*[#:]?\s*(\d+)`)},
	{sigDuration, regexp.MustCompile(`(?i)(?:for(?:\s+a\s+period\s+of)?|duration|term|length)\s*[:\-]?\s*(\d+)\s*(months?|years?|weeks?|days?)`)},
	{sigRetainers, regexp.MustCompile(`(?i)retainer\s*(?:of\s*)?\$` + amount)},
	{sigExpenseCaps, regexp.MustCompile(`(?i)expenses?\s*(?:(?:shall\s+)?not\s+to?\s+exceed|capped?\s+at|limited?\s+to)\s*\$` + amount)},
	{sigLateFees, regexp.MustCompile(`(?i)late\s+fee\s*(?:of\s*)?(?:is\s*)?\d+(?:\.\d+)?%`)},
	{sigCurrencyCodes, regexp.MustCompile(`(?i)\b(USD|EUR|GBP|CAD|AUD|JPY|CHF)\b\s*[$€£¥]?\s*` + amount + `|[€£¥]\s*` + amount)},
	{sigClientName, regexp.MustCompile(`(?i)(?:client|customer)\s*[:]\s*([^\n,(]{2,80})|between\s+([A-Z][^\n(]{2,60}?)\s+(?:\(|and\b)`)},
}

// contextWindow is how many characters of surrounding text are kept with each
// match for review snippets and proximity pairing.
const contextWindow = 100

// patMatch is one hit from the battery.
type patMatch struct {
	pattern string
	text    string
	start   int
	end     int
	groups  []string
	context string
	weight  float64
}

// properAmount matches a fully formatted currency value like $1,250.50.
var properAmount = regexp.MustCompile(`^\$[\d,]+\.\d{2}$`)

// bareAmount matches a currency value without cents.
var bareAmount = regexp.MustCompile(`^\$[\d,]+$`)

// matchWeight scores how trustworthy an individual match is, on [0, 1].
// Exact rate expressions and well-formatted amounts score higher than bare
// numbers with no unit.
func matchWeight(pattern, text string) float64 {
	w := 0.5

	switch pattern {
	case sigDollarAmounts, sigHourlyRates, sigMonthlyRates, sigQuarterlyRates, sigAnnualRates, sigRetainers:
		if properAmount.MatchString(extractAmountToken(text)) {
			w += 0.3
		} else if bareAmount.MatchString(extractAmountToken(text)) {
			w += 0.2
		}
	case sigPaymentTerms, sigDueOnReceipt:
		w += 0.2
	}

	if len(text) < 3 {
		w -= 0.2
	}

	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return w
}

// extractAmountToken pulls the $-prefixed token out of a longer rate match so
// weight rules can inspect its formatting.
func extractAmountToken(text string) string {
	i := strings.IndexByte(text, '$')
	if i < 0 {
		return text
	}
	rest := text[i:]
	for j := 1; j < len(rest); j++ {
		c := rest[j]
		if (c >= '0' && c <= '9') || c == ',' || c == '.' {
			continue
		}
		return strings.TrimRight(rest[:j], ".")
	}
	return rest
}

// runBattery executes every pattern against the text and returns matches
// grouped by pattern name, each in position order.
func runBattery(text string) map[string][]patMatch {
	results := make(map[string][]patMatch)
	for _, def := range battery {
		locs := def.re.FindAllStringSubmatchIndex(text, -1)
		for _, loc := range locs {
			m := patMatch{
				pattern: def.name,
				text:    text[loc[0]:loc[1]],
				start:   loc[0],
				end:     loc[1],
				context: contextAround(text, loc[0], loc[1]),
			}
			for g := 1; g*2 < len(loc); g++ {
				if loc[g*2] >= 0 {
					m.groups = append(m.groups, text[loc[g*2]:loc[g*2+1]])
				} else {
					m.groups = append(m.groups, "")
				}
			}
			m.weight = matchWeight(def.name, m.text)
			results[def.name] = append(results[def.name], m)
		}
	}
	return results
}

func contextAround(text string, start, end int) string {
	cs := start - contextWindow
	if cs < 0 {
		cs = 0
	}
	ce := end + contextWindow
	if ce > len(text) {
		ce = len(text)
	}
	return strings.TrimSpace(text[cs:ce])
}
