package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// HeuristicParser derives company/date/total from raw OCR text using
// positional and lexical rules. It targets Hebrew receipts with embedded
// Latin digits and currency marks; all rules are deterministic and
// order-stable for a given cleaned text.
type HeuristicParser struct {
	reBidiMarks   *regexp.Regexp
	reArtifacts   *regexp.Regexp
	reWhitespace  *regexp.Regexp
	reHebrew      *regexp.Regexp
	reLatin       *regexp.Regexp
	reDigits      *regexp.Regexp
	reBareDate    *regexp.Regexp
	reBareAmount  *regexp.Regexp
	reNoise       *regexp.Regexp
	reDateDMY     *regexp.Regexp
	reDateYMD     *regexp.Regexp
	amountRegexps []*regexp.Regexp
	reFallback    *regexp.Regexp

	skipWords     []string
	skipTokens    []string
	totalKeywords []string
}

// Company-line denylist: structural words that start receipts but never name
// the business, in both scripts the parser targets.
var companySkipWords = []string{
	"קבלה",    // receipt
	"בס\"ד",   // customary header
	"חשבונית", // invoice
	"תאריך",   // date
	"שעה",     // time
	"קופה",    // register
	"עסקה",    // transaction
	"לקוח יקר", // dear customer
	"receipt",
	"invoice",
	"date",
	"time",
	"register",
	"transaction",
	"total",
	"dear customer",
}

// companySkipTokens match case-sensitively: lowercasing "WT" would also
// swallow Latin names carrying the bigram, like "Newton".
var companySkipTokens = []string{"WT"}

// Total-line keywords, including OCR-mangled spellings of סה"כ.
var totalKeywords = []string{
	"סה\"כ",
	"סך הכל",
	"לתשלום",
	"סה״כ",
	"סכום",
	"total",
	"סהכ",
}

func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{
		reBidiMarks:  regexp.MustCompile(`[\x{200e}\x{200f}\x{202a}-\x{202e}]`),
		reArtifacts:  regexp.MustCompile("[°“”‘’`´]"),
		reWhitespace: regexp.MustCompile(`\s+`),
		reHebrew:     regexp.MustCompile(`[\x{0590}-\x{05ff}]`),
		reLatin:      regexp.MustCompile(`[A-Za-z]`),
		reDigits:     regexp.MustCompile(`\d+`),
		reBareDate:   regexp.MustCompile(`^\d{1,2}[./]\d{1,2}[./]\d{2,4}`),
		reBareAmount: regexp.MustCompile(`^\d+\.\d{2}`),
		reNoise:      regexp.MustCompile(`^[\d\s\-:]+$`),
		reDateDMY:    regexp.MustCompile(`(\d{1,2})[./\-](\d{1,2})[./\-](\d{2,4})`),
		reDateYMD:    regexp.MustCompile(`(\d{4})[./\-](\d{1,2})[./\-](\d{1,2})`),
		// Priority order: a plain decimal wins over a bare integer so that
		// "45.90 ₪" yields 45.90, not the 90 the integer form would grab.
		amountRegexps: []*regexp.Regexp{
			regexp.MustCompile(`(\d+\.\d{2})\s*₪?`),
			regexp.MustCompile(`(\d+)\s*₪`),
			regexp.MustCompile(`₪\s*(\d+\.\d{2})`),
			regexp.MustCompile(`₪\s*(\d+)`),
		},
		reFallback:    regexp.MustCompile(`\d+\.\d{2}`),
		skipWords:     companySkipWords,
		skipTokens:    companySkipTokens,
		totalKeywords: totalKeywords,
	}
}

// Parse runs all three field extractors over the cleaned lines of text.
// Absent fields come back as the NotFound marker.
func (p *HeuristicParser) Parse(text string) Result {
	lines := p.cleanLines(text)

	res := Result{
		Company: NotFound,
		Date:    NotFound,
		Total:   NotFound,
		Method:  MethodHeuristic,
	}
	if company, ok := p.company(lines); ok {
		res.Company = company
	}
	if date, ok := p.date(lines); ok {
		res.Date = date
	}
	if total, ok := p.total(lines); ok {
		res.Total = total
	}
	return res
}

// cleanLines splits raw OCR output into non-empty lines with bidirectional
// control marks and common OCR artifact glyphs removed, and runs of
// whitespace collapsed.
func (p *HeuristicParser) cleanLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = p.reBidiMarks.ReplaceAllString(line, "")
		line = p.reArtifacts.ReplaceAllString(line, "")
		line = strings.TrimSpace(p.reWhitespace.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// company scans the first 10 lines for the business name. Receipts print it
// near the top, above the itemized body; structural lines and bare
// numeric/date lines are skipped.
func (p *HeuristicParser) company(lines []string) (string, bool) {
	limit := len(lines)
	if limit > 10 {
		limit = 10
	}

scan:
	for _, line := range lines[:limit] {
		lower := strings.ToLower(line)
		for _, w := range p.skipWords {
			if strings.Contains(lower, strings.ToLower(w)) {
				continue scan
			}
		}
		for _, w := range p.skipTokens {
			if strings.Contains(line, w) {
				continue scan
			}
		}
		if utf8.RuneCountInString(line) <= 3 {
			continue
		}
		if p.reBareDate.MatchString(line) || p.reBareAmount.MatchString(line) || p.reNoise.MatchString(line) {
			continue
		}
		if p.reHebrew.MatchString(line) {
			// A Hebrew business line carries either a digit (branch number,
			// tax id) or at least two words.
			if p.reDigits.MatchString(line) || len(strings.Fields(line)) >= 2 {
				return line, true
			}
			continue
		}
		// Latin-script fallback: any non-numeric line with letters can name
		// the business, e.g. a chain printing its brand alone on line one.
		if p.reLatin.MatchString(line) {
			return line, true
		}
	}
	return "", false
}

// date returns the first validated date match across all lines, formatted
// day/month/year with the digit widths the receipt used.
func (p *HeuristicParser) date(lines []string) (string, bool) {
	for _, line := range lines {
		// Year-first needs all four year digits and goes first: the
		// day-first regex would otherwise split "2024-07-09" mid-year.
		for _, m := range p.reDateYMD.FindAllStringSubmatch(line, -1) {
			if d, ok := p.validDate(m[3], m[2], m[1]); ok {
				return d, true
			}
		}
		for _, m := range p.reDateDMY.FindAllStringSubmatch(line, -1) {
			if d, ok := p.validDate(m[1], m[2], m[3]); ok {
				return d, true
			}
		}
	}
	return "", false
}

func (p *HeuristicParser) validDate(day, month, year string) (string, bool) {
	if len(year) == 2 {
		if y, _ := strconv.Atoi(year); y < 50 {
			year = "20" + year
		} else {
			year = "19" + year
		}
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return "", false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", false
	}
	return day + "/" + month + "/" + year, true
}

// total looks for an amount anchored to a total keyword, inspecting the
// keyword line and the two lines below it and taking the maximum amount in
// that window. Receipts repeat smaller figures (subtotal, change, VAT) near
// the total, so the maximum is the safer pick. When no keyword anchors an
// amount anywhere, it falls back to the largest plausible decimal amount on
// the whole receipt.
func (p *HeuristicParser) total(lines []string) (string, bool) {
	for i, line := range lines {
		if !p.hasTotalKeyword(line) {
			continue
		}
		end := i + 3
		if end > len(lines) {
			end = len(lines)
		}
		if best, ok := p.maxAmountInWindow(lines[i:end]); ok {
			return best, true
		}
	}

	// Fallback: global maximum of in-range decimal amounts. Values outside
	// [1.0, 10000.0] are noise — line-item prices read as totals, or OCR
	// artifacts.
	var bestStr string
	var bestVal float64
	found := false
	for _, line := range lines {
		for _, m := range p.reFallback.FindAllString(line, -1) {
			v, err := strconv.ParseFloat(m, 64)
			if err != nil || v < 1.0 || v > 10000.0 {
				continue
			}
			if !found || v > bestVal {
				bestStr, bestVal, found = m, v, true
			}
		}
	}
	return bestStr, found
}

func (p *HeuristicParser) hasTotalKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range p.totalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// maxAmountInWindow returns the largest amount in the window. Within a
// single line, the first amount form that matches wins, so the decimal form
// shadows the bare-integer form on the same text.
func (p *HeuristicParser) maxAmountInWindow(window []string) (string, bool) {
	var bestStr string
	var bestVal float64
	found := false
	for _, line := range window {
		for _, re := range p.amountRegexps {
			matches := re.FindAllStringSubmatch(line, -1)
			if len(matches) == 0 {
				continue
			}
			for _, m := range matches {
				v, err := strconv.ParseFloat(m[1], 64)
				if err != nil {
					continue
				}
				if !found || v > bestVal {
					bestStr, bestVal, found = m[1], v, true
				}
			}
			break
		}
	}
	return bestStr, found
}
