package domain

// PipelineSteps returns the ordered processing steps for a queue type.
// Unknown types have no pipeline and yield nil.
func PipelineSteps(t QueueType) []Step {
	switch t {
	case QueueTypeFiling:
		return []Step{StepReview, StepDocket, StepNEF, StepServe}
	case QueueTypeMotion:
		return []Step{StepReview, StepDocket, StepNEF, StepRouteJudge, StepServe}
	case QueueTypeOrder:
		return []Step{StepDocket, StepNEF, StepServe}
	case QueueTypeDeadlineAlert, QueueTypeGeneral:
		return []Step{StepReview}
	}
	return nil
}

// FirstStep returns the step a new item of type t starts on.
func FirstStep(t QueueType) (Step, bool) {
	steps := PipelineSteps(t)
	if len(steps) == 0 {
		return "", false
	}
	return steps[0], true
}

// NextStep returns the step after current in t's pipeline.
// The second result is false when current is the last step or not part of the pipeline.
func NextStep(t QueueType, current Step) (Step, bool) {
	steps := PipelineSteps(t)
	for i, s := range steps {
		if s == current {
			if i+1 < len(steps) {
				return steps[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// IsLastStep reports whether s is the final named step of t's pipeline.
func IsLastStep(t QueueType, s Step) bool {
	steps := PipelineSteps(t)
	return len(steps) > 0 && steps[len(steps)-1] == s
}
