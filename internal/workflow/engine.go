package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"stagehand/internal/services"
)

// ValidationResult is the outcome of checking a proposed decision or
// transition. Nothing is mutated while producing it.
type ValidationResult struct {
	Valid             bool     `json:"valid"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings"`
	AllowedNextStates []Status `json:"allowedNextStates"`
	// NextState is the status the task would move to; empty when invalid.
	NextState Status `json:"nextState,omitempty"`
}

// Err returns nil for a valid result, otherwise an ErrValidation-marked error
// listing every violated constraint.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return services.Wrap(services.ErrValidation, "workflow", "", strings.Join(r.Errors, "; "), nil)
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) finish() ValidationResult {
	r.Valid = len(r.Errors) == 0
	if !r.Valid {
		r.NextState = ""
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	if r.AllowedNextStates == nil {
		r.AllowedNextStates = []Status{}
	}
	return *r
}

// Engine evaluates the finite-state table. It is stateless and safe for
// concurrent use.
type Engine struct {
	rules map[Status]Rule
}

// NewEngine returns an engine bound to the package rule table.
func NewEngine() *Engine {
	return &Engine{rules: rules}
}

// ValidateReview checks that role may decide on a task in status and computes
// the resulting status.
func (e *Engine) ValidateReview(status Status, role Role, decision Decision) ValidationResult {
	var res ValidationResult
	rule, ok := e.rules[status]
	if !ok {
		res.fail("unknown task status %q", status)
		return res.finish()
	}
	if decision != DecisionApprove && decision != DecisionReject {
		res.fail("unknown decision %q (expected approve or reject)", decision)
	}
	if rule.ReviewRole == "" {
		res.fail("%s", rule.ClosedReason)
		return res.finish()
	}
	res.AllowedNextStates = slices.Clone(rule.Targets)
	if role != rule.ReviewRole {
		res.fail("wrong stakeholder: %s expects a decision from %s, got %s", status, rule.ReviewRole, describeRole(role))
	}
	switch decision {
	case DecisionApprove:
		res.NextState = rule.OnApprove
	case DecisionReject:
		res.NextState = rule.OnReject
		res.Warnings = append(res.Warnings, "rejection moves the task to NeedsRefinement; a manual reset to PendingProductDirector is required to resume review")
	}
	return res.finish()
}

// ValidateDevTransition checks actor permission and target reachability
// independently; both violations are reported when both apply.
func (e *Engine) ValidateDevTransition(status, target Status, actor Role) ValidationResult {
	var res ValidationResult
	rule, ok := e.rules[status]
	if !ok {
		res.fail("unknown task status %q", status)
		return res.finish()
	}
	if len(rule.Actors) == 0 {
		res.fail("no development transitions are defined from %s", status)
		return res.finish()
	}
	res.AllowedNextStates = slices.Clone(rule.Targets)
	if !rule.allowsActor(actor) {
		res.fail("%s may not act on a task in %s (allowed: %s)", describeRole(actor), status, joinRoles(rule.Actors))
	}
	if !rule.allowsTarget(target) {
		res.fail("transition %s -> %s is not allowed (allowed: %s)", status, target, joinStatuses(rule.Targets))
	}
	res.NextState = target
	return res.finish()
}

// ResolveDevDecision maps an approve/reject verdict on InReview or InQA to its
// target and validates the resulting transition for actor.
func (e *Engine) ResolveDevDecision(status Status, actor Role, decision Decision) (Status, ValidationResult) {
	rule, ok := e.rules[status]
	if !ok || !rule.takesDecisions() || rule.ReviewRole != "" {
		var res ValidationResult
		if !ok {
			res.fail("unknown task status %q", status)
		} else {
			res.fail("%s does not take approve/reject decisions", status)
			res.AllowedNextStates = slices.Clone(rule.Targets)
		}
		return "", res.finish()
	}
	var target Status
	switch decision {
	case DecisionApprove:
		target = rule.OnApprove
	case DecisionReject:
		target = rule.OnReject
	default:
		var res ValidationResult
		res.fail("unknown decision %q (expected approve or reject)", decision)
		res.AllowedNextStates = slices.Clone(rule.Targets)
		return "", res.finish()
	}
	res := e.ValidateDevTransition(status, target, actor)
	if !res.Valid {
		return "", res
	}
	return target, res
}

// ApplyReview records role's decision on task: it fills the role's review
// slot, appends a transition, and moves the status. The task is untouched
// when validation fails.
func (e *Engine) ApplyReview(task *Task, role Role, decision Decision, notes string, fields ReviewFields, now time.Time) (Transition, error) {
	if task == nil {
		return Transition{}, services.Wrap(services.ErrValidation, "workflow", "review", "task is required", nil)
	}
	res := e.ValidateReview(task.Status, role, decision)
	if problems := checkFields(role, fields); len(problems) > 0 {
		res.Errors = append(res.Errors, problems...)
		res.Valid = false
	}
	if err := res.Err(); err != nil {
		return Transition{}, err
	}

	now = now.UTC()
	reviewedAt := now
	record := ReviewRecord{
		Approved:   decision == DecisionApprove,
		Notes:      strings.TrimSpace(notes),
		Reviewer:   string(role),
		ReviewedAt: &reviewedAt,
	}
	if err := task.Reviews.set(role, record, fields); err != nil {
		return Transition{}, services.Wrap(services.ErrValidation, "workflow", "review", err.Error(), nil)
	}
	transition := Transition{
		From:     task.Status,
		To:       res.NextState,
		Actor:    role,
		At:       now,
		Notes:    record.Notes,
		Metadata: map[string]string{"kind": "review", "decision": string(decision)},
	}
	task.append(transition)
	return transition, nil
}

// ApplyDevTransition moves task to target on behalf of actor.
func (e *Engine) ApplyDevTransition(task *Task, target Status, actor Role, notes string, now time.Time) (Transition, error) {
	if task == nil {
		return Transition{}, services.Wrap(services.ErrValidation, "workflow", "transition", "task is required", nil)
	}
	if err := e.ValidateDevTransition(task.Status, target, actor).Err(); err != nil {
		return Transition{}, err
	}
	transition := Transition{
		From:     task.Status,
		To:       target,
		Actor:    actor,
		At:       now.UTC(),
		Notes:    strings.TrimSpace(notes),
		Metadata: map[string]string{"kind": "development"},
	}
	task.append(transition)
	return transition, nil
}

// ApplyDevDecision resolves and applies an approve/reject verdict on InReview or InQA.
func (e *Engine) ApplyDevDecision(task *Task, actor Role, decision Decision, notes string, now time.Time) (Transition, error) {
	if task == nil {
		return Transition{}, services.Wrap(services.ErrValidation, "workflow", "decide", "task is required", nil)
	}
	target, res := e.ResolveDevDecision(task.Status, actor, decision)
	if err := res.Err(); err != nil {
		return Transition{}, err
	}
	transition, err := e.ApplyDevTransition(task, target, actor, notes, now)
	if err != nil {
		return Transition{}, err
	}
	transition.Metadata["decision"] = string(decision)
	return transition, nil
}

// ResetRefinement is the manual way out of NeedsRefinement. Review slots are
// cleared so every stakeholder reviews the reworked task again; the earlier
// decisions remain in the transition log.
func (e *Engine) ResetRefinement(task *Task, actor Role, notes string, now time.Time) (Transition, error) {
	if task == nil {
		return Transition{}, services.Wrap(services.ErrValidation, "workflow", "reset", "task is required", nil)
	}
	var res ValidationResult
	if task.Status != StatusNeedsRefinement {
		res.fail("only tasks in NeedsRefinement can be reset, task is %s", task.Status)
	}
	if !slices.Contains(ResetRoles, actor) {
		res.fail("%s may not reset a task (allowed: %s)", describeRole(actor), joinRoles(ResetRoles))
	}
	if err := res.finish().Err(); err != nil {
		return Transition{}, err
	}
	task.Reviews = Reviews{}
	transition := Transition{
		From:     task.Status,
		To:       StatusPendingProductDirector,
		Actor:    actor,
		At:       now.UTC(),
		Notes:    strings.TrimSpace(notes),
		Metadata: map[string]string{"kind": "reset"},
	}
	task.append(transition)
	return transition, nil
}

func (t *Task) append(transition Transition) {
	t.Status = transition.To
	t.Transitions = append(t.Transitions, transition)
	t.UpdatedAt = transition.At
}

func describeRole(role Role) string {
	if role == "" {
		return "(no role)"
	}
	return string(role)
}

func joinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func joinStatuses(statuses []Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
