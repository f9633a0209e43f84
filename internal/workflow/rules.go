package workflow

import "slices"

// Rule is one row of the finite-state table.
type Rule struct {
	// ReviewRole is the stakeholder expected to decide; empty outside the review pipeline.
	ReviewRole Role
	// Actors may request a development transition out of this status.
	Actors []Role
	// Targets lists every status reachable from this one.
	Targets []Status
	// OnApprove and OnReject resolve a decision; empty when the status takes none.
	OnApprove Status
	OnReject  Status
	// ClosedReason explains why reviews are refused; set for non-review statuses.
	ClosedReason string
}

func (r Rule) allowsActor(actor Role) bool {
	return slices.Contains(r.Actors, actor)
}

func (r Rule) allowsTarget(target Status) bool {
	return slices.Contains(r.Targets, target)
}

func (r Rule) takesDecisions() bool {
	return r.OnApprove != "" && r.OnReject != ""
}

func reviewRule(role Role, next Status) Rule {
	return Rule{
		ReviewRole: role,
		Targets:    []Status{next, StatusNeedsRefinement},
		OnApprove:  next,
		OnReject:   StatusNeedsRefinement,
	}
}

const devClosed = "task is in the development pipeline; stakeholder review is closed"

var rules = map[Status]Rule{
	StatusPendingProductDirector: reviewRule(RoleProductDirector, StatusPendingArchitect),
	StatusPendingArchitect:       reviewRule(RoleArchitect, StatusPendingUiUxExpert),
	StatusPendingUiUxExpert:      reviewRule(RoleUiUxExpert, StatusPendingSecurityOfficer),
	StatusPendingSecurityOfficer: reviewRule(RoleSecurityOfficer, StatusReadyForDevelopment),
	StatusReadyForDevelopment: {
		Actors:       []Role{RoleOrchestrator, RoleDeveloper},
		Targets:      []Status{StatusToDo},
		ClosedReason: "task is ReadyForDevelopment; the review pipeline is complete",
	},
	StatusNeedsRefinement: {
		ClosedReason: "task is NeedsRefinement; it must be reset to PendingProductDirector before further review",
	},
	StatusToDo: {
		Actors:       []Role{RoleDeveloper},
		Targets:      []Status{StatusInProgress},
		ClosedReason: devClosed,
	},
	StatusInProgress: {
		Actors:       []Role{RoleDeveloper},
		Targets:      []Status{StatusInReview},
		ClosedReason: devClosed,
	},
	StatusInReview: {
		Actors:       []Role{RoleCodeReviewer},
		Targets:      []Status{StatusInQA, StatusNeedsChanges},
		OnApprove:    StatusInQA,
		OnReject:     StatusNeedsChanges,
		ClosedReason: devClosed,
	},
	StatusInQA: {
		Actors:       []Role{RoleQA},
		Targets:      []Status{StatusDone, StatusNeedsChanges},
		OnApprove:    StatusDone,
		OnReject:     StatusNeedsChanges,
		ClosedReason: devClosed,
	},
	StatusNeedsChanges: {
		Actors:       []Role{RoleDeveloper},
		Targets:      []Status{StatusInProgress},
		ClosedReason: devClosed,
	},
	StatusDone: {
		ClosedReason: "task is Done",
	},
}

// RuleFor returns the table row for status. The returned slices are copies.
func RuleFor(status Status) (Rule, bool) {
	rule, ok := rules[status]
	if !ok {
		return Rule{}, false
	}
	rule.Actors = slices.Clone(rule.Actors)
	rule.Targets = slices.Clone(rule.Targets)
	return rule, true
}
