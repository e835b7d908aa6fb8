package comment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_belowMinLength(t *testing.T) {
	res := Validate("short", Options{Required: true, MinLength: 20})

	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "at least 20 characters")
}

func TestValidate_emptyNotRequired(t *testing.T) {
	res := Validate("", Options{Required: false})

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidate_emptyRequired(t *testing.T) {
	res := Validate("   \n  ", DefaultOptions())

	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"Comment is required"}, res.Errors)
}

func TestValidate_aboveMaxLength(t *testing.T) {
	text := strings.Repeat("adequate documentation missing ", 20)
	res := Validate(text, ApprovalOptions())

	assert.False(t, res.IsValid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "must not exceed 300")
}

func TestValidate_profanityOnlyWhenChecked(t *testing.T) {
	text := "This data is rubbish and must be corrected before forwarding."

	res := Validate(text, RejectionOptions())
	assert.False(t, res.IsValid)
	assert.Contains(t, strings.Join(res.Errors, "|"), "inappropriate language")

	res = Validate(text, GeneralOptions())
	assert.True(t, res.IsValid)
}

func TestValidate_spamIsWarningOnly(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"repeated characters", "Please recheck the figures!!!!!! for section two.", "repeated characters"},
		{"url", "Please see https://example.org/guidance for the format.", "URL"},
		{"all caps", "The PPP figures are INCONSISTENT with last year's return.", "capital letters"},
		{"digit run", "Reference number 12345678901 does not match our records.", "digits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.text, GeneralOptions())
			assert.True(t, res.IsValid, "errors: %v", res.Errors)
			assert.Contains(t, strings.Join(res.Warnings, "|"), tt.want)
		})
	}
}

func TestValidate_spamNotCheckedByDefault(t *testing.T) {
	res := Validate("Please see https://example.org/guidance for the format.", DefaultOptions())
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "URL")
	}
}

func TestValidate_emptyLines(t *testing.T) {
	text := "Line one of the review.\n\n\n\nLine two of the review."

	res := Validate(text, DefaultOptions())
	assert.True(t, res.IsValid)
	assert.Contains(t, strings.Join(res.Warnings, "|"), "empty lines")

	opts := DefaultOptions()
	opts.AllowEmptyLines = true
	res = Validate(text, opts)
	assert.NotContains(t, strings.Join(res.Warnings, "|"), "empty lines")
}

func TestValidate_specialChars(t *testing.T) {
	opts := DefaultOptions()
	opts.AllowSpecialChars = false

	res := Validate("Capex figures look fine ~ approved for now.", opts)
	assert.True(t, res.IsValid)
	assert.Contains(t, strings.Join(res.Warnings, "|"), "special character")
}

func TestValidate_contentHeuristics(t *testing.T) {
	res := Validate("ok ok ok ok ok ok", DefaultOptions())
	joined := strings.Join(res.Warnings, "|")

	assert.Contains(t, joined, "meaningful words")
	assert.Contains(t, joined, "repeated too often")
}

func TestValidate_shortSentences(t *testing.T) {
	res := Validate("Fix it. Now. Redo. Check.", DefaultOptions())
	assert.Contains(t, strings.Join(res.Warnings, "|"), "very short")
}

func TestValidate_cleanRejection(t *testing.T) {
	text := "Capex utilisation figures for the last quarter do not reconcile with the budget documents."
	res := Validate(text, RejectionOptions())

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestOptionsFor(t *testing.T) {
	o, err := OptionsFor(PresetRejection)
	require.NoError(t, err)
	assert.Equal(t, 20, o.MinLength)
	assert.Equal(t, 500, o.MaxLength)
	assert.True(t, o.Required)
	assert.True(t, o.CheckProfanity)

	o, err = OptionsFor(PresetApproval)
	require.NoError(t, err)
	assert.False(t, o.Required)
	assert.False(t, o.CheckProfanity)
	assert.True(t, o.CheckSpam)

	_, err = OptionsFor("loud")
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, Options{
		MinLength:         10,
		MaxLength:         1000,
		Required:          true,
		AllowSpecialChars: true,
		AllowEmptyLines:   false,
		MaxEmptyLines:     2,
	}, o)
}
