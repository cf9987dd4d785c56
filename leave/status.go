package leave

import (
	"regexp"
	"strings"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the workflow state of an application.
type Status string

const (
	StatusPending         Status = "pending"
	StatusForwardedToHR   Status = "forwarded_to_hr"
	StatusForwardedToHOD  Status = "forwarded_to_hod"
	StatusForwardedToDean Status = "forwarded_to_dean"
	StatusForwardedToVC   Status = "forwarded_to_vc"
	StatusApproved        Status = "approved"
	StatusApprovedByHR    Status = "approved_by_hr"
	StatusApprovedByHOD   Status = "approved_by_hod"
	StatusApprovedByDean  Status = "approved_by_dean"
	StatusApprovedByVC    Status = "approved_by_vc"
	StatusRejected        Status = "rejected"
	StatusRejectedByHR    Status = "rejected_by_hr"
	StatusRejectedByHOD   Status = "rejected_by_hod"
	StatusRejectedByDean  Status = "rejected_by_dean"
	StatusRejectedByVC    Status = "rejected_by_vc"
	StatusCancelled       Status = "cancelled"
)

// AllStatuses lists every status.
var AllStatuses = []Status{
	StatusPending,
	StatusForwardedToHR, StatusForwardedToHOD, StatusForwardedToDean, StatusForwardedToVC,
	StatusApproved,
	StatusApprovedByHR, StatusApprovedByHOD, StatusApprovedByDean, StatusApprovedByVC,
	StatusRejected,
	StatusRejectedByHR, StatusRejectedByHOD, StatusRejectedByDean, StatusRejectedByVC,
	StatusCancelled,
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsOpen reports whether the application still awaits a decision.
func (s Status) IsOpen() bool {
	return s == StatusPending || strings.HasPrefix(string(s), "forwarded_to_")
}

// IsApproved reports any approval status.
func (s Status) IsApproved() bool {
	return s == StatusApproved || strings.HasPrefix(string(s), "approved_by_")
}

// RestoresBalance reports whether reaching s gives the deducted days back.
func (s Status) RestoresBalance() bool {
	return s == StatusRejected || s == StatusCancelled || strings.HasPrefix(string(s), "rejected_by_")
}

// IsTerminal reports whether no further transition is defined from s.
func (s Status) IsTerminal() bool {
	return !s.IsOpen()
}

// Label is the human-readable form used in notifications.
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	words := strings.Split(string(s), "_")
	for i, w := range words {
		switch w {
		case "hr", "hod", "vc":
			words[i] = strings.ToUpper(w)
		case "dean":
			words[i] = "Dean"
		}
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}

// blockingStatuses are the statuses of non-casual applications that casual
// leave may not overlap.
func blockingStatuses() []Status {
	var out []Status
	for _, s := range AllStatuses {
		if s.IsOpen() || s.IsApproved() {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// ROUTE - Typed forward_to targets, resolved once at submission
// =============================================================================

// Route names an approver an application is addressed to.
type Route string

const (
	RouteNone Route = ""
	RouteHR   Route = "hr"
	RouteHOD  Route = "hod"
	RouteDean Route = "dean"
	RouteVC   Route = "vc"
)

// InitialStatus is the status a newly submitted application starts in.
func (r Route) InitialStatus() Status {
	switch r {
	case RouteHR:
		return StatusForwardedToHR
	case RouteHOD:
		return StatusForwardedToHOD
	case RouteDean:
		return StatusForwardedToDean
	case RouteVC:
		return StatusForwardedToVC
	}
	return StatusPending
}

func (r Route) Valid() bool {
	switch r {
	case RouteNone, RouteHR, RouteHOD, RouteDean, RouteVC:
		return true
	}
	return false
}

// RouteForRole maps an approver role to its route. Faculty has none.
func RouteForRole(role Role) Route {
	switch role {
	case RoleHR:
		return RouteHR
	case RoleHOD:
		return RouteHOD
	case RoleDean:
		return RouteDean
	case RoleVC:
		return RouteVC
	}
	return RouteNone
}

var nonLetters = regexp.MustCompile(`[^a-z]+`)

// routeKeywords are checked in order; the first hit wins.
var routeKeywords = []struct {
	route   Route
	words   []string
	phrases []string
}{
	{RouteHR, []string{"hr"}, []string{"human resources", "human resource"}},
	{RouteDean, []string{"dean"}, nil},
	{RouteVC, []string{"vc"}, []string{"vice chancellor"}},
	{RouteHOD, []string{"hod"}, []string{"head of department", "head of the department"}},
}

func normalizeRoute(text string) string {
	return strings.TrimSpace(nonLetters.ReplaceAllString(strings.ToLower(text), " "))
}

// ExactRoute matches forward_to only when the whole text is one of the
// route keywords or phrases. It decides who sees the application first:
// "VC" goes straight to the VC, "HOD, then VC" does not.
func ExactRoute(text string) Route {
	normalized := normalizeRoute(text)
	if normalized == "" {
		return RouteNone
	}
	for _, kw := range routeKeywords {
		for _, w := range kw.words {
			if normalized == w {
				return kw.route
			}
		}
		for _, p := range kw.phrases {
			if normalized == p {
				return kw.route
			}
		}
	}
	return RouteNone
}

// ParseRoute finds the first route keyword anywhere in forward_to, by
// whole word and case-insensitively. It decides where HOD and dean
// approvals send the application. "Dr. Shrivastava" does not match "hr".
func ParseRoute(text string) Route {
	normalized := normalizeRoute(text)
	if normalized == "" {
		return RouteNone
	}
	padded := " " + normalized + " "
	for _, kw := range routeKeywords {
		for _, w := range kw.words {
			if strings.Contains(padded, " "+w+" ") {
				return kw.route
			}
		}
		for _, p := range kw.phrases {
			if strings.Contains(padded, " "+p+" ") {
				return kw.route
			}
		}
	}
	return RouteNone
}
