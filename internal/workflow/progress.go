package workflow

// Progress summarizes where a task stands in the review pipeline. It is for
// reporting only; gating is driven by status alone.
type Progress struct {
	Completed   []Role `json:"completed"`
	Pending     []Role `json:"pending"`
	CurrentRole Role   `json:"currentRole,omitempty"`
	RejectedBy  Role   `json:"rejectedBy,omitempty"`
}

// reviewStage is the number of stakeholders a status implies have approved,
// or -1 when the status says nothing about it.
func reviewStage(status Status) int {
	switch status {
	case StatusPendingProductDirector:
		return 0
	case StatusPendingArchitect:
		return 1
	case StatusPendingUiUxExpert:
		return 2
	case StatusPendingSecurityOfficer:
		return 3
	case StatusNeedsRefinement:
		return -1
	default:
		return len(ReviewRoles)
	}
}

// ReviewProgress derives approved and outstanding stakeholders from the review
// slots and the current status.
func (e *Engine) ReviewProgress(task *Task) Progress {
	progress := Progress{Completed: []Role{}, Pending: []Role{}}
	if task == nil {
		return progress
	}
	stage := reviewStage(task.Status)
	for i, role := range ReviewRoles {
		record, _ := task.Reviews.Record(role)
		switch {
		case record.Approved || (stage >= 0 && i < stage):
			progress.Completed = append(progress.Completed, role)
		default:
			progress.Pending = append(progress.Pending, role)
			if record.Reviewed() && progress.RejectedBy == "" {
				progress.RejectedBy = role
			}
		}
	}
	progress.CurrentRole = e.rules[task.Status].ReviewRole
	return progress
}
