// Package intent classifies a question into the shape of answer it expects.
// Classification is lexical: keyword and pattern matching over Vietnamese and
// English phrasing. Detect is total, every question maps to exactly one
// Intent, and has no side effects.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Intent enumerates the answer shapes the pipeline can produce.
type Intent int

const (
	// Default is a plain grounded answer.
	Default Intent = iota
	// Summary asks for a prose summary.
	Summary
	// BulletSummary asks for a bulleted list.
	BulletSummary
	// Define asks for the definition of a term.
	Define
	// Compare asks to compare or contrast two items.
	Compare
)

// String returns the upper-case wire name of the intent.
func (i Intent) String() string {
	switch i {
	case Summary:
		return "SUMMARY"
	case BulletSummary:
		return "BULLET_SUMMARY"
	case Define:
		return "DEFINE"
	case Compare:
		return "COMPARE"
	default:
		return "DEFAULT"
	}
}

// MarshalText encodes the intent by name.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// Hint is the structured result of classifying one question.
// Optional fields are empty (or zero) when absent.
type Hint struct {
	// Intent is the detected answer shape.
	Intent Intent
	// Term is the expression to define (Define only), in its original casing.
	Term string
	// SectionHint is a document section explicitly named in the question,
	// lower-cased (e.g. "mở đầu", "introduction", "chapter 2").
	SectionHint string
	// BulletCount is the number of bullets requested (BulletSummary only).
	BulletCount int
}

// maxBullets caps BulletCount so a stray year or page number is not read
// as a bullet request.
const maxBullets = 50

var (
	compareKeywords = []string{
		"so sánh", "khác nhau", "khác biệt", "giống và khác", "điểm khác",
		"compare", "comparison", "difference between", "differences between",
		"contrast", "versus",
	}
	compareVsRe = regexp.MustCompile(`(?i)\bvs\.?(\s|$)`)

	bulletKeywords = []string{
		"bullet", "gạch đầu dòng", "liệt kê", "ý chính", "điểm chính",
		"key points", "main points", "key takeaways",
	}
	// "list" is only a request when used as a verb or as the output shape,
	// so "linked list" or "list comprehension" stay terms.
	bulletListRe = regexp.MustCompile(`(?i)(?:^|[.!?:]\s*)(?:please\s+|(?:can|could|would)\s+you\s+(?:please\s+)?)?(?:list|enumerate)\b|\b(?:as|in)\s+an?\s+(?:bulleted\s+|numbered\s+)?list\b|\ba\s+list\s+of\b`)

	summaryKeywords = []string{
		"tóm tắt", "tóm lược", "khái quát", "nội dung chính",
		"summarize", "summarise", "tl;dr", "summary of", "overview of",
	}
	// summaryNouns ask for a summary unless the question is defining them
	// ("what is an executive summary").
	summaryNouns = []string{"tổng quan", "summary", "overview"}

	// definePatterns extract the term to define. Each pattern captures the
	// term in group 1 and is matched against the NFC-normalized question.
	definePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*what\s+does\s+(.+?)\s+mean\b`),
		regexp.MustCompile(`(?i)^\s*what(?:\s+is|\s+are|'s|’s)\s+(?:an?\s+|the\s+)?(.+?)\s*[?.!]*\s*$`),
		regexp.MustCompile(`(?i)^\s*define\s+(?:the\s+term\s+)?(.+?)\s*[?.!]*\s*$`),
		regexp.MustCompile(`(?i)\b(?:definition|meaning)\s+of\s+(?:an?\s+|the\s+)?(.+?)\s*[?.!]*\s*$`),
		regexp.MustCompile(`(?i)^\s*thế\s+nào\s+là\s+(.+?)\s*[?.!]*\s*$`),
		regexp.MustCompile(`(?i)^\s*(?:định\s+nghĩa|khái\s+niệm)\s+(?:của\s+|về\s+)?(.+?)(?:\s+là\s+gì)?\s*[?.!]*\s*$`),
		regexp.MustCompile(`(?i)^\s*(?:cho\s+(?:tôi|mình|em)\s+biết\s+)?(.+?)\s+(?:có\s+)?nghĩa\s+là\s+gì\s*[?.!]*\s*$`),
		regexp.MustCompile(`(?i)^\s*(?:cho\s+(?:tôi|mình|em)\s+biết\s+)?(.+?)\s+là\s+(?:cái\s+)?gì\s*[?.!]*\s*$`),
	}

	// sectionNames are document sections recognised by name, most specific first.
	sectionNames = []string{
		"phần mở đầu", "lời mở đầu", "mở đầu", "giới thiệu", "kết luận", "phương pháp",
		"tài liệu tham khảo",
		"introduction", "conclusion", "abstract", "methodology", "background",
		"related work", "references",
	}
	numberedSectionRe = regexp.MustCompile(`(?i)\b(chapter|section|chương|mục|phần)\s+(\d+(?:\.\d+)*|[ivxlc]+)(?:$|[\s.,;:?!)])`)

	bulletCountRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:bullets?|points?|items?|ý|điểm|gạch|dòng)`)
	bulletWordRe  = regexp.MustCompile(`(?i)\b(one|two|three|four|five|six|seven|eight|nine|ten|một|hai|ba|bốn|năm|sáu|bảy|tám|chín|mười)\s+(?:bullets?|points?|items?|ý|điểm|gạch|dòng)`)
	anyNumberRe   = regexp.MustCompile(`\b(\d{1,3})\b`)

	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
		"một": 1, "hai": 2, "ba": 3, "bốn": 4, "năm": 5,
		"sáu": 6, "bảy": 7, "tám": 8, "chín": 9, "mười": 10,
	}
)

// Detect classifies question and extracts its optional term, section and
// bullet count. Precedence is Compare, BulletSummary, Summary, Define, then
// Default. A bare summary noun does not count as a Summary request when the
// question is phrased as a definition.
func Detect(question string) Hint {
	q := norm.NFC.String(strings.TrimSpace(question))
	lower := strings.ToLower(q)

	hint := Hint{SectionHint: detectSection(lower)}
	term := detectTerm(q)

	switch {
	case isCompare(lower):
		hint.Intent = Compare
	case containsAny(lower, bulletKeywords) || bulletListRe.MatchString(lower):
		hint.Intent = BulletSummary
		hint.BulletCount = detectBulletCount(lower)
	case containsAny(lower, summaryKeywords),
		term == "" && containsAny(lower, summaryNouns):
		hint.Intent = Summary
	case term != "":
		hint.Intent = Define
		hint.Term = term
	}
	return hint
}

// IsIntroduction reports whether a section hint denotes an opening section.
func IsIntroduction(section string) bool {
	s := strings.ToLower(norm.NFC.String(section))
	return strings.Contains(s, "mở đầu") ||
		strings.Contains(s, "giới thiệu") ||
		strings.Contains(s, "introduction")
}

func isCompare(lower string) bool {
	return containsAny(lower, compareKeywords) || compareVsRe.MatchString(lower)
}

func detectSection(lower string) string {
	if m := numberedSectionRe.FindStringSubmatch(lower); m != nil {
		return m[1] + " " + m[2]
	}
	for _, name := range sectionNames {
		if strings.Contains(lower, name) {
			return name
		}
	}
	return ""
}

func detectBulletCount(lower string) int {
	if m := bulletCountRe.FindStringSubmatch(lower); m != nil {
		if n := boundedCount(m[1]); n > 0 {
			return n
		}
	}
	if m := bulletWordRe.FindStringSubmatch(lower); m != nil {
		return numberWords[m[1]]
	}
	if m := anyNumberRe.FindStringSubmatch(lower); m != nil {
		return boundedCount(m[1])
	}
	return 0
}

func boundedCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxBullets {
		return 0
	}
	return n
}

func detectTerm(q string) string {
	for _, re := range definePatterns {
		m := re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		if term := cleanTerm(m[1]); term != "" && !isDeictic(term) {
			return term
		}
	}
	return ""
}

// isDeictic rejects captures that refer to the document itself rather than
// a term ("what is this document about").
func isDeictic(term string) bool {
	lower := strings.ToLower(term)
	if strings.HasSuffix(lower, " about") {
		return true
	}
	for _, p := range []string{"this ", "that ", "it ", "tài liệu này", "văn bản này"} {
		if strings.HasPrefix(lower, p) || lower == strings.TrimSpace(p) {
			return true
		}
	}
	return false
}

// termPrefixes are lead-ins left in a capture by the looser patterns.
var termPrefixes = []string{"khái niệm ", "định nghĩa ", "thuật ngữ ", "the term "}

// cleanTerm strips lead-in words, surrounding quotes, punctuation and whitespace.
func cleanTerm(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range termPrefixes {
		if len(s) > len(p) && strings.EqualFold(s[:len(p)], p) {
			s = s[len(p):]
			break
		}
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\"'“”‘’`?.!:;,()[]"))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
