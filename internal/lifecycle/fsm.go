package lifecycle

import (
	"fmt"

	"github.com/dukerupert/cleanround/internal/model"
	"github.com/felixgeelhaar/statekit"
)

type machineContext struct {
	EntityID int64
}

// machine drives a single transition attempt through a statekit interpreter.
type machine struct {
	interpreter *statekit.Interpreter[machineContext]
}

// buildMachine turns a transition table into a statekit machine started in
// from. Statuses with no outgoing events become leaf states.
func buildMachine[S ~string](name string, from S, entityID int64, table map[S]map[string]S) (*machine, error) {
	builder := statekit.NewMachine[machineContext](name).
		WithInitial(statekit.StateID(from)).
		WithContext(machineContext{EntityID: entityID})

	for state, events := range table {
		sb := builder.State(statekit.StateID(state))
		for event, to := range events {
			sb.On(statekit.EventType(event)).Target(statekit.StateID(to))
		}
	}

	def, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s machine: %w", name, err)
	}
	return newMachine(statekit.NewInterpreter(def)), nil
}

func newActivityMachine(from model.ActivityStatus, activityID int64) (*machine, error) {
	return buildMachine("activity", from, activityID, activityTransitions)
}

func newTaskMachine(from model.TaskStatus, taskID int64) (*machine, error) {
	return buildMachine("room-task", from, taskID, taskTransitions)
}

func newDeficiencyMachine(from model.DeficiencyStatus, deficiencyID int64) (*machine, error) {
	return buildMachine("deficiency", from, deficiencyID, deficiencyTransitions)
}

func newMachine(interpreter *statekit.Interpreter[machineContext]) *machine {
	interpreter.Start()
	return &machine{interpreter: interpreter}
}

func (m *machine) current() string {
	return string(m.interpreter.State().Value)
}

// fire sends event and reports the resulting state. If the state did not
// change the event is not allowed from the current state.
func (m *machine) fire(event string) (string, bool) {
	before := m.current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := m.current()
	return after, before != after
}

// nextActivityStatus returns the status a reaches via event, or an
// InvalidTransition error.
func nextActivityStatus(a *model.Activity, event string) (model.ActivityStatus, error) {
	m, err := newActivityMachine(a.Status, a.ID)
	if err != nil {
		return a.Status, err
	}
	to, ok := m.fire(event)
	if !ok {
		return a.Status, invalidTransition("activity", a.ID, string(a.Status), event)
	}
	return model.ActivityStatus(to), nil
}

func nextTaskStatus(t *model.RoomTask, event string) (model.TaskStatus, error) {
	m, err := newTaskMachine(t.Status, t.ID)
	if err != nil {
		return t.Status, err
	}
	to, ok := m.fire(event)
	if !ok {
		return t.Status, invalidTransition("room task", t.ID, string(t.Status), event)
	}
	return model.TaskStatus(to), nil
}

func nextDeficiencyStatus(d *model.Deficiency, event string) (model.DeficiencyStatus, error) {
	m, err := newDeficiencyMachine(d.Status, d.ID)
	if err != nil {
		return d.Status, err
	}
	to, ok := m.fire(event)
	if !ok {
		return d.Status, invalidTransition("deficiency", d.ID, string(d.Status), event)
	}
	return model.DeficiencyStatus(to), nil
}
