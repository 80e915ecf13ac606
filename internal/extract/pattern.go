package extract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pdftext"
)

// ambiguousWeightThreshold: a committed value backed only by matches below
// this weight is flagged ambiguous_match.
const ambiguousWeightThreshold = 0.4

// proximityWindow bounds how far (in bytes) a phase label looks for its
// amount and due date.
const proximityWindow = 200

// trailingWindow is how much text after an amount is inspected for lump-sum
// qualifiers like "initial payment".
const trailingWindow = 48

var lumpSumRe = regexp.MustCompile(`(?i)initial|upfront|deposit|down\s+payment|(?:up)?on\s+signing|kick-?off`)

var startDateCueRe = regexp.MustCompile(`(?i)effective|commenc|start|begin|dated`)
var endDateCueRe = regexp.MustCompile(`(?i)expir|end(?:ing|s)?\b|through|until|terminat`)

// PatternExtractor is the deterministic, regex-driven extraction strategy.
// It never fails outright on well-formed input; low-information text yields
// an all-null result with no_match markers for every required field.
type PatternExtractor struct{}

// NewPatternExtractor creates the pattern-based strategy.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract runs the pattern battery and assembles the structured result.
// Output ordering is deterministic: signals in battery order, matches in
// position order, milestones in table-then-document order.
func (e *PatternExtractor) Extract(ctx context.Context, doc *pdftext.Document) (*model.ExtractionResult, []model.UncertainField, error) {
	res := model.NewExtractionResult()
	var uncertain []model.UncertainField

	matches := runBattery(doc.Text)
	for _, def := range battery {
		for _, m := range matches[def.name] {
			res.AddSignal(def.name, m.text)
		}
	}

	schedules := findScheduleTables(doc.Tables)
	tx := extractFromTables(schedules)

	e.resolveCurrency(res, matches, &uncertain)
	e.resolveFrequency(res, matches, tx, &uncertain)
	e.resolveTotalValue(res, matches, tx, &uncertain)
	e.resolveDates(doc.Text, res, matches, &uncertain)
	e.resolveClientName(res, matches, &uncertain)
	e.assembleMilestones(doc.Text, res, matches, tx)
	derivePercentages(res)
	checkConsistency(res, &uncertain)
	e.flagMissingRequired(res, matches, &uncertain)

	zap.L().Debug("extract: pattern pass complete",
		zap.String("file", doc.Name),
		zap.Strings("signals", res.SignalNames()),
		zap.Int("milestones", len(res.Milestones)),
		zap.Int("uncertain_fields", len(uncertain)),
	)

	return res, uncertain, nil
}

func (e *PatternExtractor) resolveCurrency(res *model.ExtractionResult, matches map[string][]patMatch, uncertain *[]model.UncertainField) {
	var codes []string
	seen := make(map[string]bool)
	var conflictCtx string

	for _, m := range matches[sigCurrencyCodes] {
		code := ""
		if len(m.groups) > 0 && m.groups[0] != "" {
			code = strings.ToUpper(m.groups[0])
		} else {
			switch {
			case strings.HasPrefix(m.text, "€"):
				code = "EUR"
			case strings.HasPrefix(m.text, "£"):
				code = "GBP"
			case strings.HasPrefix(m.text, "¥"):
				code = "JPY"
			}
		}
		if code == "" || !validCurrencyCode(code) {
			continue
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
			if len(codes) == 2 {
				conflictCtx = m.context
			}
		}
	}

	if len(codes) == 0 {
		return // default USD stands
	}

	// First detected code wins, verbatim. Amounts are never converted.
	res.Currency = codes[0]
	if len(codes) > 1 {
		*uncertain = append(*uncertain, model.NewUncertainField(
			"currency", codes[0], model.ReasonMultiCurrency, conflictCtx))
	}
}

func (e *PatternExtractor) resolveFrequency(res *model.ExtractionResult, matches map[string][]patMatch, tx tableExtraction, uncertain *[]model.UncertainField) {
	type rateKind struct {
		sig  string
		freq model.PaymentFrequency
	}
	kinds := []rateKind{
		{sigMonthlyRates, model.FrequencyMonthly},
		{sigQuarterlyRates, model.FrequencyQuarterly},
		{sigAnnualRates, model.FrequencyAnnual},
		{sigHourlyRates, model.FrequencyHourly},
	}

	var found []rateKind
	for _, k := range kinds {
		if len(matches[k.sig]) > 0 {
			found = append(found, k)
		}
	}

	switch {
	case len(found) > 0:
		res.PaymentFrequency = found[0].freq
		if len(found) > 1 {
			*uncertain = append(*uncertain, model.NewUncertainField(
				"payment_frequency", string(found[0].freq), model.ReasonConflictingMatches,
				matches[found[1].sig][0].context))
		}
	case len(tx.milestones) > 0 || len(matches[sigMilestones]) > 0:
		res.PaymentFrequency = model.FrequencyMilestone
	case len(matches[sigDollarAmounts]) > 0:
		res.PaymentFrequency = model.FrequencyOneTime
	default:
		res.PaymentFrequency = model.FrequencyUnknown
	}
}

// resolveTotalValue picks the contract total. When a payment-schedule table
// states a total/sum row, that wins; otherwise the numerically largest
// free-text amount outside rate expressions, expense caps, and schedule rows
// is taken, so recurring-rate figures and sub-payments never masquerade as
// the contract total.
func (e *PatternExtractor) resolveTotalValue(res *model.ExtractionResult, matches map[string][]patMatch, tx tableExtraction, uncertain *[]model.UncertainField) {
	excluded := make([][2]int, 0)
	for _, sig := range []string{sigHourlyRates, sigMonthlyRates, sigQuarterlyRates, sigAnnualRates, sigExpenseCaps} {
		for _, m := range matches[sig] {
			excluded = append(excluded, [2]int{m.start, m.end})
		}
	}
	inTable := make(map[float64]bool, len(tx.rowAmounts))
	for _, v := range tx.rowAmounts {
		inTable[v] = true
	}

	var best *patMatch
	var bestVal float64
	for i := range matches[sigDollarAmounts] {
		m := &matches[sigDollarAmounts][i]
		if spanOverlaps(m.start, m.end, excluded) {
			continue
		}
		v, ok := parseAmount(m.text)
		if !ok || inTable[v] {
			continue
		}
		if best == nil || v > bestVal {
			best, bestVal = m, v
		}
	}

	if tx.statedTotal != nil {
		v := *tx.statedTotal
		res.TotalValue = &v
		if best != nil && bestVal > v {
			*uncertain = append(*uncertain, model.NewUncertainField(
				"total_value", v, model.ReasonConflictingMatches, best.context))
		}
		return
	}

	if best == nil {
		return
	}
	v := bestVal
	res.TotalValue = &v
	if best.weight < ambiguousWeightThreshold {
		*uncertain = append(*uncertain, model.NewUncertainField(
			"total_value", v, model.ReasonAmbiguousMatch, best.context))
	}
}

func (e *PatternExtractor) resolveDates(text string, res *model.ExtractionResult, matches map[string][]patMatch, uncertain *[]model.UncertainField) {
	type datedMatch struct {
		m    patMatch
		when string // "start", "end", or ""
	}

	var dated []datedMatch
	for _, m := range matches[sigDates] {
		lead := leadingText(text, m.start, trailingWindow)
		dm := datedMatch{m: m}
		switch {
		case startDateCueRe.MatchString(lead):
			dm.when = "start"
		case endDateCueRe.MatchString(lead):
			dm.when = "end"
		}
		dated = append(dated, dm)
	}

	for _, dm := range dated {
		if dm.when != "start" {
			continue
		}
		if d, ok := parseDate(dm.m.text); ok {
			res.StartDate = &d
			break
		}
	}
	for _, dm := range dated {
		if dm.when != "end" {
			continue
		}
		if d, ok := parseDate(dm.m.text); ok {
			res.EndDate = &d
			break
		}
	}

	// No cue words: a single date commits as the start; several dates leave
	// the first as an ambiguous candidate. The end date is never guessed —
	// absence means ongoing.
	if res.StartDate == nil {
		var parsed []struct {
			d   patMatch
			val string
		}
		for _, dm := range dated {
			if dm.when != "" {
				continue
			}
			if d, ok := parseDate(dm.m.text); ok {
				parsed = append(parsed, struct {
					d   patMatch
					val string
				}{dm.m, d.Format("2006-01-02")})
			}
		}
		if len(parsed) == 1 {
			d, _ := parseDate(parsed[0].d.text)
			res.StartDate = &d
		} else if len(parsed) > 1 {
			d, _ := parseDate(parsed[0].d.text)
			res.StartDate = &d
			*uncertain = append(*uncertain, model.NewUncertainField(
				"start_date", parsed[0].val, model.ReasonAmbiguousMatch, parsed[0].d.context))
		}
	}
}

func (e *PatternExtractor) resolveClientName(res *model.ExtractionResult, matches map[string][]patMatch, uncertain *[]model.UncertainField) {
	for _, m := range matches[sigClientName] {
		labeled := ""
		between := ""
		if len(m.groups) > 0 {
			labeled = strings.TrimSpace(m.groups[0])
		}
		if len(m.groups) > 1 {
			between = strings.TrimSpace(m.groups[1])
		}

		if labeled != "" {
			res.ClientName = &labeled
			return
		}
		if between != "" {
			res.ClientName = &between
			*uncertain = append(*uncertain, model.NewUncertainField(
				"client_name", between, model.ReasonAmbiguousMatch, m.context))
			return
		}
	}
}

// assembleMilestones builds the milestone list. Table rows win outright;
// text-derived candidates (lump sums, periodic rate expansions, phase
// labels) only apply when no schedule table was found.
func (e *PatternExtractor) assembleMilestones(text string, res *model.ExtractionResult, matches map[string][]patMatch, tx tableExtraction) {
	if len(tx.milestones) > 0 {
		res.Milestones = tx.milestones
		return
	}

	type event struct {
		pos        int
		milestones []model.Milestone
	}
	var events []event

	consumed := make([][2]int, 0)
	for _, sig := range []string{sigHourlyRates, sigMonthlyRates, sigQuarterlyRates, sigAnnualRates, sigExpenseCaps, sigRetainers} {
		for _, m := range matches[sig] {
			consumed = append(consumed, [2]int{m.start, m.end})
		}
	}

	// Lump-sum amounts: a dollar figure immediately qualified as an initial
	// payment, deposit, or signing fee.
	for _, m := range matches[sigDollarAmounts] {
		if spanOverlaps(m.start, m.end, consumed) {
			continue
		}
		trail := trailingText(text, m.end, trailingWindow)
		if !lumpSumRe.MatchString(trail) {
			continue
		}
		amt, ok := parseAmount(m.text)
		if !ok {
			continue
		}
		v := amt
		events = append(events, event{pos: m.start, milestones: []model.Milestone{{
			Name:        lumpSumName(trail),
			Description: model.TruncateContext(m.context),
			Amount:      &v,
		}}})
		consumed = append(consumed, [2]int{m.start, m.end})
	}

	// Periodic expansion: "$X/month for N months" becomes N scheduled
	// payments (dated when the start date is known).
	if series := e.expandPeriodic(res, matches); len(series) > 0 {
		pos := 0
		if len(matches[sigMonthlyRates]) > 0 {
			pos = matches[sigMonthlyRates][0].start
		} else if len(matches[sigQuarterlyRates]) > 0 {
			pos = matches[sigQuarterlyRates][0].start
		} else if len(matches[sigAnnualRates]) > 0 {
			pos = matches[sigAnnualRates][0].start
		}
		events = append(events, event{pos: pos, milestones: series})
	}

	// Phase labels paired with the nearest amount and date inside the
	// proximity window.
	for _, m := range matches[sigMilestones] {
		ms := model.Milestone{
			Name:        canonicalPhaseName(m),
			Description: model.TruncateContext(m.context),
		}
		if am := nearestMatch(matches[sigDollarAmounts], m.start, proximityWindow, consumed); am != nil {
			if v, ok := parseAmount(am.text); ok {
				ms.Amount = &v
				consumed = append(consumed, [2]int{am.start, am.end})
			}
		}
		if dm := nearestMatch(matches[sigDates], m.start, proximityWindow, nil); dm != nil {
			if d, ok := parseDate(dm.text); ok {
				ms.DueDate = &d
			}
		}
		events = append(events, event{pos: m.start, milestones: []model.Milestone{ms}})
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].pos < events[j].pos })
	for _, ev := range events {
		res.Milestones = append(res.Milestones, ev.milestones...)
	}
}

// expandPeriodic turns a recurring rate plus a duration expression into a
// series of scheduled payments.
func (e *PatternExtractor) expandPeriodic(res *model.ExtractionResult, matches map[string][]patMatch) []model.Milestone {
	durations := matches[sigDuration]
	if len(durations) == 0 {
		return nil
	}
	durVal, durUnit := parseDuration(durations[0])
	if durVal <= 0 {
		return nil
	}

	var rate patMatch
	var count int
	var label string
	var monthsStep int

	switch res.PaymentFrequency {
	case model.FrequencyMonthly:
		if len(matches[sigMonthlyRates]) == 0 {
			return nil
		}
		rate = matches[sigMonthlyRates][0]
		label = "Monthly payment"
		monthsStep = 1
		switch durUnit {
		case "month":
			count = durVal
		case "year":
			count = durVal * 12
		}
	case model.FrequencyQuarterly:
		if len(matches[sigQuarterlyRates]) == 0 {
			return nil
		}
		rate = matches[sigQuarterlyRates][0]
		label = "Quarterly payment"
		monthsStep = 3
		switch durUnit {
		case "month":
			count = durVal / 3
		case "year":
			count = durVal * 4
		}
	case model.FrequencyAnnual:
		if len(matches[sigAnnualRates]) == 0 {
			return nil
		}
		rate = matches[sigAnnualRates][0]
		label = "Annual payment"
		monthsStep = 12
		if durUnit == "year" {
			count = durVal
		}
	default:
		return nil
	}

	if count <= 0 {
		return nil
	}

	amt, ok := parseAmount(rate.text)
	if !ok {
		return nil
	}

	series := make([]model.Milestone, 0, count)
	for i := 1; i <= count; i++ {
		v := amt
		m := model.Milestone{
			Name:   fmt.Sprintf("%s %d", label, i),
			Amount: &v,
		}
		if res.StartDate != nil {
			d := res.StartDate.AddDate(0, monthsStep*(i-1), 0)
			m.DueDate = &d
		}
		series = append(series, m)
	}
	return series
}

func (e *PatternExtractor) flagMissingRequired(res *model.ExtractionResult, matches map[string][]patMatch, uncertain *[]model.UncertainField) {
	hasAmountSignal := len(matches[sigDollarAmounts]) > 0 ||
		len(matches[sigHourlyRates]) > 0 || len(matches[sigMonthlyRates]) > 0 ||
		len(matches[sigQuarterlyRates]) > 0 || len(matches[sigAnnualRates]) > 0

	for _, field := range requiredFields {
		missing := false
		switch field {
		case "client_name":
			missing = res.ClientName == nil
		case "total_value":
			// A rate-only contract legitimately has no total; the field is
			// only missing when no amount signal of any kind was found.
			missing = res.TotalValue == nil && !hasAmountSignal
		case "currency":
			missing = len(matches[sigCurrencyCodes]) == 0 && !hasAmountSignal
		case "payment_frequency":
			missing = res.PaymentFrequency == model.FrequencyUnknown
		case "start_date":
			missing = res.StartDate == nil
		}
		if missing {
			*uncertain = append(*uncertain, model.NewUncertainField(
				field, nil, model.ReasonNoMatch, ""))
		}
	}
}

// derivePercentages fills percent_of_total for milestones whose amount and
// the contract total are both known.
func derivePercentages(res *model.ExtractionResult) {
	if res.TotalValue == nil {
		return
	}
	for i := range res.Milestones {
		m := &res.Milestones[i]
		if m.Amount != nil && m.PercentOfTotal == nil {
			m.PercentOfTotal = percentOf(*m.Amount, *res.TotalValue)
		}
	}
}

// checkConsistency surfaces structural contradictions as uncertain fields.
// Consistency problems never block finalization on their own.
func checkConsistency(res *model.ExtractionResult, uncertain *[]model.UncertainField) {
	if res.StartDate != nil && res.EndDate != nil && res.EndDate.Before(*res.StartDate) {
		*uncertain = append(*uncertain, model.NewUncertainField(
			"end_date", res.EndDate.Format("2006-01-02"), model.ReasonConflictingMatches,
			fmt.Sprintf("end date %s precedes start date %s",
				res.EndDate.Format("2006-01-02"), res.StartDate.Format("2006-01-02"))))
	}

	if len(res.Milestones) > 0 {
		sum := 0.0
		all := true
		for _, m := range res.Milestones {
			if m.PercentOfTotal == nil {
				all = false
				break
			}
			sum += *m.PercentOfTotal
		}
		if all && (sum < 99.0 || sum > 101.0) {
			*uncertain = append(*uncertain, model.NewUncertainField(
				"milestones", nil, model.ReasonAmbiguousMatch,
				fmt.Sprintf("milestone percentages sum to %.1f%%, not 100%%", sum)))
		}
	}
}

func parseDuration(m patMatch) (int, string) {
	if len(m.groups) < 2 {
		return 0, ""
	}
	v, err := strconv.Atoi(m.groups[0])
	if err != nil {
		return 0, ""
	}
	unit := strings.ToLower(strings.TrimSuffix(m.groups[1], "s"))
	return v, unit
}

func canonicalPhaseName(m patMatch) string {
	name := strings.TrimSpace(m.text)
	if name == "" {
		return "Milestone"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func lumpSumName(trail string) string {
	lower := strings.ToLower(trail)
	switch {
	case strings.Contains(lower, "deposit"):
		return "Deposit"
	case strings.Contains(lower, "signing"):
		return "Signing payment"
	default:
		return "Initial payment"
	}
}

func nearestMatch(candidates []patMatch, pos, window int, consumed [][2]int) *patMatch {
	var best *patMatch
	bestDist := window + 1
	for i := range candidates {
		c := &candidates[i]
		if spanOverlaps(c.start, c.end, consumed) {
			continue
		}
		dist := c.start - pos
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best
}

func spanOverlaps(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

func leadingText(text string, pos, n int) string {
	start := pos - n
	if start < 0 {
		start = 0
	}
	return text[start:pos]
}

func trailingText(text string, pos, n int) string {
	end := pos + n
	if end > len(text) {
		end = len(text)
	}
	return text[pos:end]
}
