package lifecycle

import (
	"math"

	"github.com/dukerupert/cleanround/internal/model"
)

// Evaluation is the pass-rate summary of an activity's task set.
type Evaluation struct {
	// PassRate is nil when no task has been inspected.
	PassRate    *float64      `json:"pass_rate"`
	Outcome     model.Outcome `json:"outcome"`
	Threshold   float64       `json:"threshold"`
	Total       int           `json:"total"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Uninspected int           `json:"uninspected"`
	Cancelled   int           `json:"cancelled"`
}

// Evaluate computes the pass rate of tasks against passThresholdPercent.
// Cancelled and uninspected tasks are left out of the rate. The boundary is
// inclusive: a rate equal to the threshold passes.
func Evaluate(tasks []model.RoomTask, passThresholdPercent float64) Evaluation {
	ev := Evaluation{Threshold: passThresholdPercent, Total: len(tasks)}
	for _, t := range tasks {
		switch {
		case t.Status == model.TaskCancelled:
			ev.Cancelled++
		case t.Inspection == model.InspectionPass:
			ev.Passed++
		case t.Inspection == model.InspectionFail:
			ev.Failed++
		default:
			ev.Uninspected++
		}
	}

	inspected := ev.Passed + ev.Failed
	if inspected == 0 {
		ev.Outcome = model.OutcomeUnrated
		return ev
	}

	rate := float64(100*ev.Passed) / float64(inspected)
	ev.PassRate = &rate
	if rate >= passThresholdPercent {
		ev.Outcome = model.OutcomePass
	} else {
		ev.Outcome = model.OutcomeFail
	}
	return ev
}

func validThreshold(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t > 100 {
		return invalidInput("pass threshold %v outside 0..100", t)
	}
	return nil
}
