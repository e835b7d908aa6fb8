// Package comment validates the free-text review comments attached to
// workflow transitions.
package comment

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options controls a single validation run. Use DefaultOptions or one of the
// presets as a starting point; the zero value rejects everything longer than
// zero characters.
type Options struct {
	MinLength         int  `yaml:"min_length"`
	MaxLength         int  `yaml:"max_length"`
	Required          bool `yaml:"required"`
	AllowSpecialChars bool `yaml:"allow_special_chars"`
	AllowEmptyLines   bool `yaml:"allow_empty_lines"`
	MaxEmptyLines     int  `yaml:"max_empty_lines"`
	CheckProfanity    bool `yaml:"check_profanity"`
	CheckSpam         bool `yaml:"check_spam"`
}

// DefaultOptions returns the general-purpose defaults.
func DefaultOptions() Options {
	return Options{
		MinLength:         10,
		MaxLength:         1000,
		Required:          true,
		AllowSpecialChars: true,
		AllowEmptyLines:   false,
		MaxEmptyLines:     2,
	}
}

// RejectionOptions is the preset for rejection and return comments.
func RejectionOptions() Options {
	o := DefaultOptions()
	o.MinLength = 20
	o.MaxLength = 500
	o.CheckProfanity = true
	o.CheckSpam = true
	return o
}

// ApprovalOptions is the preset for approval and forwarding comments.
func ApprovalOptions() Options {
	o := DefaultOptions()
	o.MinLength = 5
	o.MaxLength = 300
	o.Required = false
	o.CheckSpam = true
	return o
}

// GeneralOptions is the preset for free-standing review comments.
func GeneralOptions() Options {
	o := DefaultOptions()
	o.MaxLength = 400
	o.CheckSpam = true
	return o
}

// Preset names a validation preset.
type Preset string

// Validation presets.
const (
	PresetRejection Preset = "rejection"
	PresetApproval  Preset = "approval"
	PresetGeneral   Preset = "general"
)

// OptionsFor returns the options of a named preset.
func OptionsFor(p Preset) (Options, error) {
	switch p {
	case PresetRejection:
		return RejectionOptions(), nil
	case PresetApproval:
		return ApprovalOptions(), nil
	case PresetGeneral:
		return GeneralOptions(), nil
	}
	return Options{}, fmt.Errorf("unknown comment preset %q", p)
}

// Result is the outcome of a validation run. Errors block acceptance,
// warnings are advisory.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

var profanity = []string{
	"damn", "crap", "idiot", "idiotic", "stupid", "nonsense", "rubbish",
	"useless", "garbage", "pathetic", "bloody", "hell",
}

var (
	urlPattern     = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	capsPattern    = regexp.MustCompile(`[A-Z]{10,}`)
	digitPattern   = regexp.MustCompile(`\d{10,}`)
	wordPattern    = regexp.MustCompile(`[\p{L}\p{N}']+`)
	sentenceSplit  = regexp.MustCompile(`[.!?]+`)
	allowedSpecial = ".,;:!?'\"()-/&%@#\n\r\t "
)

const (
	repeatedRunLength    = 5
	minMeaningfulWords   = 3
	repeatedWordRatio    = 0.3
	minAvgSentenceLength = 10
)

// Validate checks text against opts.
func Validate(text string, opts Options) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}
	trimmed := strings.TrimSpace(text)

	if trimmed == "" {
		if opts.Required {
			res.Errors = append(res.Errors, "Comment is required")
			return res
		}
		res.IsValid = true
		return res
	}

	length := utf8.RuneCountInString(trimmed)
	if length < opts.MinLength {
		res.Errors = append(res.Errors,
			fmt.Sprintf("Comment must be at least %d characters long (currently %d)", opts.MinLength, length))
	}
	if opts.MaxLength > 0 && length > opts.MaxLength {
		res.Errors = append(res.Errors,
			fmt.Sprintf("Comment must not exceed %d characters (currently %d)", opts.MaxLength, length))
	}
	if opts.CheckProfanity {
		if word, ok := containsProfanity(trimmed); ok {
			res.Errors = append(res.Errors,
				fmt.Sprintf("Comment contains inappropriate language (%q)", word))
		}
	}

	if !opts.AllowEmptyLines {
		if n := countEmptyLines(trimmed); n > opts.MaxEmptyLines {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Comment contains %d empty lines (maximum %d)", n, opts.MaxEmptyLines))
		}
	}
	if !opts.AllowSpecialChars {
		if r, ok := firstDisallowedChar(trimmed); ok {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Comment contains special character %q", r))
		}
	}
	if opts.CheckSpam {
		res.Warnings = append(res.Warnings, spamWarnings(trimmed)...)
	}
	res.Warnings = append(res.Warnings, contentWarnings(trimmed)...)

	res.IsValid = len(res.Errors) == 0
	return res
}

// ValidatePreset validates text against a named preset.
func ValidatePreset(text string, p Preset) (Result, error) {
	opts, err := OptionsFor(p)
	if err != nil {
		return Result{}, err
	}
	return Validate(text, opts), nil
}

func containsProfanity(text string) (string, bool) {
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		words[w] = true
	}
	for _, p := range profanity {
		if words[p] {
			return p, true
		}
	}
	return "", false
}

func countEmptyLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			n++
		}
	}
	return n
}

func firstDisallowedChar(text string) (rune, bool) {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(allowedSpecial, r) {
			continue
		}
		return r, true
	}
	return 0, false
}

func spamWarnings(text string) []string {
	var out []string
	if hasRepeatedRun(text, repeatedRunLength) {
		out = append(out, "Comment contains repeated characters")
	}
	if urlPattern.MatchString(text) {
		out = append(out, "Comment contains a URL")
	}
	if capsPattern.MatchString(text) {
		out = append(out, "Comment contains excessive capital letters")
	}
	if digitPattern.MatchString(text) {
		out = append(out, "Comment contains a long run of digits")
	}
	return out
}

// hasRepeatedRun reports whether any non-space rune repeats n or more times
// in a row. RE2 has no back-references, so this is a scan.
func hasRepeatedRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= n {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

func contentWarnings(text string) []string {
	var out []string
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	meaningful := 0
	counts := make(map[string]int, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 {
			meaningful++
		}
		counts[w]++
	}
	if meaningful < minMeaningfulWords {
		out = append(out, fmt.Sprintf("Comment should contain at least %d meaningful words", minMeaningfulWords))
	}
	for _, w := range words {
		c := counts[w]
		if c > 1 && float64(c)/float64(len(words)) > repeatedWordRatio {
			out = append(out, fmt.Sprintf("Word %q is repeated too often", w))
			break
		}
	}

	var total, sentences int
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sentences++
		total += utf8.RuneCountInString(s)
	}
	if sentences > 0 && total/sentences < minAvgSentenceLength {
		out = append(out, "Sentences are very short; consider adding more detail")
	}
	return out
}
