package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ReviewRecord is the part of a review slot every stakeholder shares.
type ReviewRecord struct {
	Approved   bool       `json:"approved"`
	Notes      string     `json:"notes"`
	Reviewer   string     `json:"reviewer,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

// Reviewed reports whether a decision has been recorded in the slot.
func (r ReviewRecord) Reviewed() bool { return r.ReviewedAt != nil }

// ReviewFields is the role-specific part of a review. The set of
// implementations is closed: one per stakeholder role.
type ReviewFields interface {
	Role() Role
	validate() error
}

// ProductDirectorFields captures the product view of a task.
type ProductDirectorFields struct {
	MarketAlignment        string `json:"marketAlignment,omitempty" yaml:"marketAlignment"`
	BusinessValue          string `json:"businessValue,omitempty" yaml:"businessValue"`
	PriorityRecommendation string `json:"priorityRecommendation,omitempty" yaml:"priorityRecommendation"`
}

// ArchitectFields captures the technical assessment of a task.
type ArchitectFields struct {
	TechnicalApproach string   `json:"technicalApproach,omitempty" yaml:"technicalApproach"`
	Complexity        int      `json:"complexity,omitempty" yaml:"complexity"`
	Dependencies      []string `json:"dependencies,omitempty" yaml:"dependencies"`
	TechnicalRisks    []string `json:"technicalRisks,omitempty" yaml:"technicalRisks"`
}

// UiUxFields captures the usability assessment of a task.
type UiUxFields struct {
	UsabilityScore     int      `json:"usabilityScore,omitempty" yaml:"usabilityScore"`
	AccessibilityNotes string   `json:"accessibilityNotes,omitempty" yaml:"accessibilityNotes"`
	DesignPatterns     []string `json:"designPatterns,omitempty" yaml:"designPatterns"`
}

// SecurityFields captures the security assessment of a task.
type SecurityFields struct {
	SecurityRisks   []string `json:"securityRisks,omitempty" yaml:"securityRisks"`
	Mitigations     []string `json:"mitigations,omitempty" yaml:"mitigations"`
	ComplianceNotes string   `json:"complianceNotes,omitempty" yaml:"complianceNotes"`
}

func (ProductDirectorFields) Role() Role { return RoleProductDirector }
func (ArchitectFields) Role() Role       { return RoleArchitect }
func (UiUxFields) Role() Role            { return RoleUiUxExpert }
func (SecurityFields) Role() Role        { return RoleSecurityOfficer }

func (ProductDirectorFields) validate() error { return nil }

func (f ArchitectFields) validate() error {
	if f.Complexity < 0 || f.Complexity > 10 {
		return fmt.Errorf("architect complexity must be between 0 and 10, got %d", f.Complexity)
	}
	return nil
}

func (f UiUxFields) validate() error {
	if f.UsabilityScore < 0 || f.UsabilityScore > 10 {
		return fmt.Errorf("usability score must be between 0 and 10, got %d", f.UsabilityScore)
	}
	return nil
}

func (SecurityFields) validate() error { return nil }

// ProductDirectorReview is the product director's slot.
type ProductDirectorReview struct {
	ReviewRecord
	Fields ProductDirectorFields `json:"fields"`
}

// ArchitectReview is the architect's slot.
type ArchitectReview struct {
	ReviewRecord
	Fields ArchitectFields `json:"fields"`
}

// UiUxReview is the UI/UX expert's slot.
type UiUxReview struct {
	ReviewRecord
	Fields UiUxFields `json:"fields"`
}

// SecurityReview is the security officer's slot.
type SecurityReview struct {
	ReviewRecord
	Fields SecurityFields `json:"fields"`
}

// Reviews holds one slot per stakeholder. The zero value is a task nobody has reviewed.
type Reviews struct {
	ProductDirector ProductDirectorReview `json:"productDirector"`
	Architect       ArchitectReview       `json:"architect"`
	UiUxExpert      UiUxReview            `json:"uiUxExpert"`
	SecurityOfficer SecurityReview        `json:"securityOfficer"`
}

// Record returns the shared part of the slot owned by role.
func (r Reviews) Record(role Role) (ReviewRecord, bool) {
	switch role {
	case RoleProductDirector:
		return r.ProductDirector.ReviewRecord, true
	case RoleArchitect:
		return r.Architect.ReviewRecord, true
	case RoleUiUxExpert:
		return r.UiUxExpert.ReviewRecord, true
	case RoleSecurityOfficer:
		return r.SecurityOfficer.ReviewRecord, true
	default:
		return ReviewRecord{}, false
	}
}

// set writes a decision into role's slot. fields may be nil; when non-nil it
// must belong to role.
func (r *Reviews) set(role Role, record ReviewRecord, fields ReviewFields) error {
	if fields != nil && fields.Role() != role {
		return fmt.Errorf("review fields for %s cannot be recorded by %s", fields.Role(), role)
	}
	switch role {
	case RoleProductDirector:
		r.ProductDirector.ReviewRecord = record
		if f, ok := fields.(ProductDirectorFields); ok {
			r.ProductDirector.Fields = f
		}
	case RoleArchitect:
		r.Architect.ReviewRecord = record
		if f, ok := fields.(ArchitectFields); ok {
			r.Architect.Fields = f
		}
	case RoleUiUxExpert:
		r.UiUxExpert.ReviewRecord = record
		if f, ok := fields.(UiUxFields); ok {
			r.UiUxExpert.Fields = f
		}
	case RoleSecurityOfficer:
		r.SecurityOfficer.ReviewRecord = record
		if f, ok := fields.(SecurityFields); ok {
			r.SecurityOfficer.Fields = f
		}
	default:
		return fmt.Errorf("%s does not own a review slot", role)
	}
	return nil
}

func (r Reviews) validate() error {
	return errors.Join(
		r.Architect.Fields.validate(),
		r.UiUxExpert.Fields.validate(),
	)
}

// checkFields reports every problem with fields supplied by role.
func checkFields(role Role, fields ReviewFields) []string {
	if fields == nil {
		return nil
	}
	var problems []string
	if fields.Role() != role {
		problems = append(problems, fmt.Sprintf("review fields belong to %s, not %s", fields.Role(), role))
	}
	if err := fields.validate(); err != nil {
		problems = append(problems, err.Error())
	}
	return problems
}
