package leave

import (
	"fmt"
	"strings"
)

// =============================================================================
// ACTIONS
// =============================================================================

// Action is something an actor does to an application.
type Action string

const (
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionRecommendDean Action = "recommend_dean"
	ActionRecommendVC   Action = "recommend_vc"
	ActionCancel        Action = "cancel"
)

// ParseAction accepts the stored form, with dashes or spaces allowed.
func ParseAction(s string) (Action, error) {
	a := Action(strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(s))))
	switch a {
	case ActionApprove, ActionReject, ActionRecommendDean, ActionRecommendVC, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Verb is the action phrased for messages ("recommend to dean").
func (a Action) Verb() string {
	switch a {
	case ActionRecommendDean:
		return "recommend to dean"
	case ActionRecommendVC:
		return "recommend to VC"
	}
	return string(a)
}

// =============================================================================
// TRANSITION TABLE - role x action -> (precondition, outcome)
// =============================================================================

type rule struct {
	from []Status
	to   func(app *Application) Status
}

type ruleKey struct {
	role   Role
	action Action
}

func always(s Status) func(*Application) Status {
	return func(*Application) Status { return s }
}

var (
	hodQueue  = []Status{StatusPending, StatusForwardedToHOD}
	deanQueue = []Status{StatusPending, StatusForwardedToDean}
	vcQueue   = []Status{StatusPending, StatusForwardedToVC}
	hrQueue   = []Status{StatusPending, StatusForwardedToHR}
	openQueue = []Status{StatusPending, StatusForwardedToHR, StatusForwardedToHOD, StatusForwardedToDean, StatusForwardedToVC}
)

var transitions = map[ruleKey]rule{
	{RoleHOD, ActionApprove}: {hodQueue, func(app *Application) Status {
		switch app.Target {
		case RouteHR:
			return StatusForwardedToHR
		case RouteDean:
			return StatusForwardedToDean
		case RouteVC:
			return StatusForwardedToVC
		}
		return StatusApprovedByHOD
	}},
	{RoleHOD, ActionReject}:        {hodQueue, always(StatusRejectedByHOD)},
	{RoleHOD, ActionRecommendDean}: {hodQueue, always(StatusForwardedToDean)},
	{RoleHOD, ActionRecommendVC}:   {hodQueue, always(StatusForwardedToVC)},

	{RoleDean, ActionApprove}: {deanQueue, func(app *Application) Status {
		switch app.Target {
		case RouteHR:
			return StatusForwardedToHR
		case RouteVC:
			return StatusForwardedToVC
		}
		return StatusApprovedByDean
	}},
	{RoleDean, ActionReject}:      {deanQueue, always(StatusRejectedByDean)},
	{RoleDean, ActionRecommendVC}: {deanQueue, always(StatusForwardedToVC)},

	{RoleVC, ActionApprove}: {vcQueue, always(StatusApprovedByVC)},
	{RoleVC, ActionReject}:  {vcQueue, always(StatusRejectedByVC)},

	{RoleHR, ActionApprove}: {hrQueue, always(StatusApprovedByHR)},
	{RoleHR, ActionReject}:  {hrQueue, always(StatusRejectedByHR)},

	{RoleFaculty, ActionCancel}: {openQueue, always(StatusCancelled)},
}

// Transition returns the status app moves to when role performs action.
// It does not modify app.
func Transition(app *Application, role Role, action Action) (Status, error) {
	r, ok := transitions[ruleKey{role, action}]
	if !ok {
		return "", &InvalidStateError{Action: action, Role: role, Status: app.Status}
	}
	for _, s := range r.from {
		if app.Status == s {
			return r.to(app), nil
		}
	}
	return "", &InvalidStateError{Action: action, Role: role, Status: app.Status, Allowed: r.from}
}

// Queue returns the statuses in which role can act on an application,
// i.e. what belongs in that role's inbox.
func Queue(role Role) []Status {
	switch role {
	case RoleHOD:
		return hodQueue
	case RoleDean:
		return deanQueue
	case RoleVC:
		return vcQueue
	case RoleHR:
		return hrQueue
	}
	return nil
}

// Actions lists what role may do from app's current status.
func Actions(app *Application, role Role) []Action {
	var out []Action
	for _, a := range []Action{ActionApprove, ActionReject, ActionRecommendDean, ActionRecommendVC, ActionCancel} {
		if _, err := Transition(app, role, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}
