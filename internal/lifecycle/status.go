package lifecycle

import (
	"sort"

	"github.com/dukerupert/cleanround/internal/model"
)

// Events accepted by the activity, room task and deficiency machines.
const (
	EventPublish      = "publish"
	EventCancel       = "cancel"
	EventClose        = "close"
	EventStart        = "start"
	EventComplete     = "complete"
	EventReportIssues = "report_issues"
	EventResolve      = "resolve"
)

// activityTransitions maps currentStatus -> event -> targetStatus. Every
// status has an entry; terminal ones accept no events. The statekit machines
// in fsm.go are built from these tables.
var activityTransitions = map[model.ActivityStatus]map[string]model.ActivityStatus{
	model.ActivityDraft: {
		EventPublish: model.ActivityActive,
		EventCancel:  model.ActivityCancelled,
	},
	model.ActivityActive: {
		EventClose:  model.ActivityClosed,
		EventCancel: model.ActivityCancelled,
	},
	model.ActivityClosed:    nil,
	model.ActivityCancelled: nil,
}

var taskTransitions = map[model.TaskStatus]map[string]model.TaskStatus{
	model.TaskNotStarted: {
		EventStart:  model.TaskInProgress,
		EventCancel: model.TaskCancelled,
	},
	model.TaskInProgress: {
		EventComplete:     model.TaskDone,
		EventReportIssues: model.TaskHasIssues,
		EventCancel:       model.TaskCancelled,
	},
	model.TaskDone:      nil,
	model.TaskHasIssues: nil,
	model.TaskCancelled: nil,
}

var deficiencyTransitions = map[model.DeficiencyStatus]map[string]model.DeficiencyStatus{
	model.DeficiencyOpen: {
		EventStart:   model.DeficiencyInProgress,
		EventResolve: model.DeficiencyResolved,
	},
	model.DeficiencyInProgress: {
		EventResolve: model.DeficiencyResolved,
	},
	model.DeficiencyResolved: nil,
}

// ActivityEvents returns the events an activity in the given status accepts,
// sorted for stable output.
func ActivityEvents(s model.ActivityStatus) []string {
	return sortedKeys(activityTransitions[s])
}

// TaskEvents returns the events a room task in the given status accepts.
func TaskEvents(s model.TaskStatus) []string {
	return sortedKeys(taskTransitions[s])
}

// DeficiencyEvents returns the events a deficiency in the given status accepts.
func DeficiencyEvents(s model.DeficiencyStatus) []string {
	return sortedKeys(deficiencyTransitions[s])
}

// TaskTerminal reports whether a task in status s counts as finished for closing.
func TaskTerminal(s model.TaskStatus) bool {
	switch s {
	case model.TaskDone, model.TaskHasIssues, model.TaskCancelled:
		return true
	default:
		return false
	}
}

// Inspectable reports whether a task in status s may receive an inspection result.
func Inspectable(s model.TaskStatus) bool {
	return s == model.TaskDone || s == model.TaskHasIssues
}

func ValidActivityStatus(s model.ActivityStatus) bool {
	_, ok := activityTransitions[s]
	return ok
}

func ValidSeverity(s model.Severity) bool {
	switch s {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh:
		return true
	}
	return false
}

func ValidDeficiencyStatus(s model.DeficiencyStatus) bool {
	_, ok := deficiencyTransitions[s]
	return ok
}

func sortedKeys[S comparable](m map[string]S) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
