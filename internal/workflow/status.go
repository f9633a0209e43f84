package workflow

import "fmt"

// Status enumerates every task status across both pipelines.
type Status string

const (
	StatusPendingProductDirector Status = "PendingProductDirector"
	StatusPendingArchitect       Status = "PendingArchitect"
	StatusPendingUiUxExpert      Status = "PendingUiUxExpert"
	StatusPendingSecurityOfficer Status = "PendingSecurityOfficer"
	StatusReadyForDevelopment    Status = "ReadyForDevelopment"
	StatusNeedsRefinement        Status = "NeedsRefinement"
	StatusToDo                   Status = "ToDo"
	StatusInProgress             Status = "InProgress"
	StatusInReview               Status = "InReview"
	StatusInQA                   Status = "InQA"
	StatusNeedsChanges           Status = "NeedsChanges"
	StatusDone                   Status = "Done"
)

var allStatuses = []Status{
	StatusPendingProductDirector,
	StatusPendingArchitect,
	StatusPendingUiUxExpert,
	StatusPendingSecurityOfficer,
	StatusReadyForDevelopment,
	StatusNeedsRefinement,
	StatusToDo,
	StatusInProgress,
	StatusInReview,
	StatusInQA,
	StatusNeedsChanges,
	StatusDone,
}

// AllStatuses returns every status in pipeline order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is an enumerated status.
func (s Status) Valid() bool {
	_, ok := rules[s]
	return ok
}

// InReviewPipeline reports whether s is one of the pending stakeholder states.
func (s Status) InReviewPipeline() bool {
	return rules[s].ReviewRole != ""
}

// InDevPipeline reports whether s belongs to the execution pipeline proper.
// ReadyForDevelopment is the hand-off point and is not included.
func (s Status) InDevPipeline() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusInReview, StatusInQA, StatusNeedsChanges, StatusDone:
		return true
	default:
		return false
	}
}

// ParseStatus converts a stored or user-provided string into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown task status %q", value)
	}
	return s, nil
}

// Role identifies an actor: a reviewing stakeholder or a development actor.
type Role string

const (
	RoleProductDirector Role = "productDirector"
	RoleArchitect       Role = "architect"
	RoleUiUxExpert      Role = "uiUxExpert"
	RoleSecurityOfficer Role = "securityOfficer"

	RoleOrchestrator Role = "orchestrator"
	RoleDeveloper    Role = "developer"
	RoleCodeReviewer Role = "codeReviewer"
	RoleQA           Role = "qa"
)

// ReviewRoles lists the stakeholders in the order they review.
var ReviewRoles = []Role{RoleProductDirector, RoleArchitect, RoleUiUxExpert, RoleSecurityOfficer}

// ResetRoles may move a task out of NeedsRefinement.
var ResetRoles = []Role{RoleProductDirector, RoleOrchestrator}

var knownRoles = map[Role]struct{}{
	RoleProductDirector: {}, RoleArchitect: {}, RoleUiUxExpert: {}, RoleSecurityOfficer: {},
	RoleOrchestrator: {}, RoleDeveloper: {}, RoleCodeReviewer: {}, RoleQA: {},
}

// ParseRole validates a role name.
func ParseRole(value string) (Role, error) {
	r := Role(value)
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return r, nil
}

// Decision is a reviewer's or gatekeeper's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision validates a decision string.
func ParseDecision(value string) (Decision, error) {
	switch d := Decision(value); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	default:
		return "", fmt.Errorf("unknown decision %q (expected approve or reject)", value)
	}
}
