package model

import "time"

// Section names the four indicator groups of a submission.
type Section string

// Indicator sections.
const (
	SectionInfrastructureFinancing   Section = "Infrastructure_Financing"
	SectionInfrastructureDevelopment Section = "Infrastructure_Development"
	SectionPPPDevelopment            Section = "PPP_Development"
	SectionInfrastructureEnablers    Section = "Infrastructure_Enablers"
)

// AllSections lists the sections in display order.
var AllSections = []Section{
	SectionInfrastructureFinancing,
	SectionInfrastructureDevelopment,
	SectionPPPDevelopment,
	SectionInfrastructureEnablers,
}

// CommentKind tags a review comment.
type CommentKind string

// Review comment kinds.
const (
	CommentKindComment   CommentKind = "comment"
	CommentKindRejection CommentKind = "rejection"
	CommentKindApproval  CommentKind = "approval"
)

// Submission is one state/UT's infrastructure-readiness data package moving
// through the approval workflow.
type Submission struct {
	ID                string          `json:"submission_id"`
	StateUTID         string          `json:"state_ut_id"`
	SubmittedByUserID string          `json:"submitted_by_user_id"`
	Status            WorkflowState   `json:"submission_status"`
	Data              SubmissionData  `json:"submission_data"`
	Comments          []ReviewComment `json:"review_comments"`
	RejectionCount    int             `json:"rejection_count"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

// SubmissionData holds the indicators of a submission grouped by section.
type SubmissionData struct {
	InfrastructureFinancing   []IndicatorData `json:"Infrastructure_Financing"`
	InfrastructureDevelopment []IndicatorData `json:"Infrastructure_Development"`
	PPPDevelopment            []IndicatorData `json:"PPP_Development"`
	InfrastructureEnablers    []IndicatorData `json:"Infrastructure_Enablers"`
}

// IndicatorData is one reported indicator value.
type IndicatorData struct {
	IndicatorID    string            `json:"indicator_id"`
	IndicatorName  string            `json:"indicator_name"`
	PrimaryValue   any               `json:"user_fill_value_a1"`
	SecondaryValue any               `json:"user_fill_value_a2,omitempty"`
	Details        *IndicatorDetails `json:"details,omitempty"`
}

// IndicatorDetails is the generated sub-list attached to count indicators.
type IndicatorDetails struct {
	Kind  string       `json:"kind"`
	Items []DetailItem `json:"items"`
}

// DetailItem is a single entry of an indicator's detail list.
type DetailItem struct {
	SerialNo int    `json:"s_no"`
	Name     string `json:"name"`
}

// ReviewComment is an append-only audit entry attached to a submission.
type ReviewComment struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"author_user_id"`
	AuthorRole Role        `json:"author_role"`
	Text       string      `json:"text"`
	Kind       CommentKind `json:"kind"`
	Action     Action      `json:"action,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Section returns the indicators of the given section.
func (d *SubmissionData) Section(s Section) []IndicatorData {
	switch s {
	case SectionInfrastructureFinancing:
		return d.InfrastructureFinancing
	case SectionInfrastructureDevelopment:
		return d.InfrastructureDevelopment
	case SectionPPPDevelopment:
		return d.PPPDevelopment
	case SectionInfrastructureEnablers:
		return d.InfrastructureEnablers
	}
	return nil
}

// SetSection replaces the indicators of the given section. Unknown sections
// are ignored.
func (d *SubmissionData) SetSection(s Section, items []IndicatorData) {
	switch s {
	case SectionInfrastructureFinancing:
		d.InfrastructureFinancing = items
	case SectionInfrastructureDevelopment:
		d.InfrastructureDevelopment = items
	case SectionPPPDevelopment:
		d.PPPDevelopment = items
	case SectionInfrastructureEnablers:
		d.InfrastructureEnablers = items
	}
}

// IsEmpty reports whether every section is empty.
func (d *SubmissionData) IsEmpty() bool {
	for _, s := range AllSections {
		if len(d.Section(s)) > 0 {
			return false
		}
	}
	return true
}

// IndicatorCount returns the number of indicators across all sections.
func (d *SubmissionData) IndicatorCount() int {
	n := 0
	for _, s := range AllSections {
		n += len(d.Section(s))
	}
	return n
}

// Clone returns a deep copy of the submission so that a failed transition
// never leaves the caller's value modified.
func (s Submission) Clone() Submission {
	out := s
	if s.Comments != nil {
		out.Comments = make([]ReviewComment, len(s.Comments))
		copy(out.Comments, s.Comments)
	}
	for _, sec := range AllSections {
		src := s.Data.Section(sec)
		if src == nil {
			continue
		}
		items := make([]IndicatorData, len(src))
		for i, ind := range src {
			items[i] = ind
			if ind.Details != nil {
				det := *ind.Details
				det.Items = append([]DetailItem(nil), ind.Details.Items...)
				items[i].Details = &det
			}
		}
		out.Data.SetSection(sec, items)
	}
	return out
}

// SubmissionSummary is a lightweight representation used in list views.
type SubmissionSummary struct {
	ID             string        `json:"submission_id"`
	StateUTID      string        `json:"state_ut_id"`
	Status         WorkflowState `json:"submission_status"`
	RejectionCount int           `json:"rejection_count"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Summary returns the list-view form of the submission.
func (s Submission) Summary() SubmissionSummary {
	return SubmissionSummary{
		ID:             s.ID,
		StateUTID:      s.StateUTID,
		Status:         s.Status,
		RejectionCount: s.RejectionCount,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
