// Package transform maps between the flat, indicator-keyed form payload
// and the structured, sectioned submission record.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/readiness/internal/catalogue"
	"github.com/pitabwire/readiness/model"
)

// UnknownFieldPolicy decides what happens to flat keys absent from the
// catalogue.
type UnknownFieldPolicy string

const (
	// UnknownFieldsDrop silently discards unknown keys.
	UnknownFieldsDrop UnknownFieldPolicy = "drop"
	// UnknownFieldsReject fails the transform with UNKNOWN_FIELD.
	UnknownFieldsReject UnknownFieldPolicy = "reject"
)

const defaultMaxDetailItems = 100

// Transformer converts form payloads to submissions and back.
type Transformer struct {
	cat            *catalogue.Catalogue
	unknown        UnknownFieldPolicy
	maxDetailItems int
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithUnknownFieldPolicy sets the policy for keys missing from the catalogue.
func WithUnknownFieldPolicy(p UnknownFieldPolicy) Option {
	return func(t *Transformer) { t.unknown = p }
}

// WithMaxDetailItems caps the length of generated detail lists.
func WithMaxDetailItems(n int) Option {
	return func(t *Transformer) {
		if n > 0 {
			t.maxDetailItems = n
		}
	}
}

// New creates a Transformer over the given catalogue.
func New(cat *catalogue.Catalogue, opts ...Option) *Transformer {
	t := &Transformer{
		cat:            cat,
		unknown:        UnknownFieldsDrop,
		maxDetailItems: defaultMaxDetailItems,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Outcome is a built submission together with the keys that were dropped.
type Outcome struct {
	Submission model.Submission
	Dropped    []string
}

// ToSubmission builds a submission in SUBMITTED_TO_STATE from a flat form.
// now drives both the identifier and the timestamps.
func (t *Transformer) ToSubmission(fields map[string]any, userID, stateUT string, now time.Time) (Outcome, error) {
	type slotValues struct {
		primary, secondary any
	}
	found := make(map[string]*slotValues)
	var dropped []string

	for key, val := range fields {
		if val == nil {
			continue
		}
		ref, ok := t.cat.FieldFor(key)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		sv := found[ref.IndicatorID]
		if sv == nil {
			sv = &slotValues{}
			found[ref.IndicatorID] = sv
		}
		if ref.Slot == catalogue.SlotPrimary {
			sv.primary = val
		} else {
			sv.secondary = val
		}
	}
	sort.Strings(dropped)

	if len(dropped) > 0 && t.unknown == UnknownFieldsReject {
		return Outcome{}, model.NewUnknownFieldError(dropped)
	}

	var data model.SubmissionData
	for _, sec := range model.AllSections {
		var items []model.IndicatorData
		for _, ind := range t.cat.Indicators(sec) {
			sv, ok := found[ind.ID]
			if !ok {
				continue
			}
			items = append(items, model.IndicatorData{
				IndicatorID:    ind.ID,
				IndicatorName:  ind.Name,
				PrimaryValue:   sv.primary,
				SecondaryValue: sv.secondary,
				Details:        t.details(ind, sv.primary),
			})
		}
		data.SetSection(sec, items)
	}

	now = now.UTC()
	return Outcome{
		Submission: model.Submission{
			ID:                NewSubmissionID(now),
			StateUTID:         stateUT,
			SubmittedByUserID: userID,
			Status:            model.StateSubmittedToState,
			Data:              data,
			Comments:          []model.ReviewComment{},
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		Dropped: dropped,
	}, nil
}

// details generates the sample detail list for count indicators. The list
// has one entry per unit of the primary value, cycling through the
// indicator's vocabulary.
func (t *Transformer) details(ind catalogue.Indicator, primary any) *model.IndicatorDetails {
	if ind.Details == nil {
		return nil
	}
	v, ok := numeric(primary)
	if !ok || !(v > 0) {
		return nil
	}
	n := t.maxDetailItems
	if v < float64(t.maxDetailItems) {
		n = int(math.Floor(v))
	}
	if n == 0 {
		return nil
	}
	vocab := ind.Details.Vocabulary
	items := make([]model.DetailItem, n)
	for i := range items {
		items[i] = model.DetailItem{SerialNo: i + 1, Name: vocab[i%len(vocab)]}
	}
	return &model.IndicatorDetails{Kind: ind.Details.Kind, Items: items}
}

// ToFormFields flattens a submission back into form keys. Indicators whose
// id is not in the catalogue are dropped.
func (t *Transformer) ToFormFields(sub model.Submission) map[string]any {
	out := make(map[string]any)
	for _, sec := range model.AllSections {
		for _, item := range sub.Data.Section(sec) {
			ind, ok := t.cat.Lookup(item.IndicatorID)
			if !ok {
				continue
			}
			if item.PrimaryValue != nil {
				out[ind.Fields.Primary] = item.PrimaryValue
			}
			if item.SecondaryValue != nil && ind.Fields.Secondary != "" {
				out[ind.Fields.Secondary] = item.SecondaryValue
			}
		}
	}
	return out
}

// ValidationResult lists every structural problem found in a submission.
type ValidationResult struct {
	IsValid bool               `json:"is_valid"`
	Errors  []model.FieldError `json:"errors"`
}

// Err returns the result as a VALIDATION_ERROR, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return model.NewValidationError(r.Errors)
}

// Validate checks the structural invariants of a submission and reports all
// violations.
func Validate(sub model.Submission) ValidationResult {
	var errs []model.FieldError
	required := func(field string) {
		errs = append(errs, model.FieldError{Field: field, Code: "REQUIRED", Message: field + " is required"})
	}

	if strings.TrimSpace(sub.StateUTID) == "" {
		required("state_ut_id")
	}
	if strings.TrimSpace(sub.SubmittedByUserID) == "" {
		required("submitted_by_user_id")
	}
	if sub.Data.IsEmpty() {
		errs = append(errs, model.FieldError{
			Field:   "submission_data",
			Code:    "EMPTY",
			Message: "at least one section must contain an indicator",
		})
	}
	for _, sec := range model.AllSections {
		for i, item := range sub.Data.Section(sec) {
			path := fmt.Sprintf("submission_data.%s[%d]", sec, i)
			if item.IndicatorID == "" {
				required(path + ".indicator_id")
			}
			if item.IndicatorName == "" {
				required(path + ".indicator_name")
			}
			if item.PrimaryValue == nil {
				required(path + ".user_fill_value_a1")
			}
		}
	}
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// NewSubmissionID returns an identifier of the form SUB-<year>-<last six
// digits of the epoch milliseconds>.
func NewSubmissionID(now time.Time) string {
	ms := now.UnixMilli()
	return fmt.Sprintf("SUB-%d-%06d", now.UTC().Year(), ms%1_000_000)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
