package flow

import "github.com/zuzya/try.idea-validator/core"

// AfterGenerate decides what follows a generation pass.
//
//	enableResearch && report == nil -> Research
//	enableCritique                  -> Critique
//	otherwise                       -> Terminal
func AfterGenerate(s core.GraphState) core.StageID {
	switch {
	case s.Config.EnableResearch && s.Report == nil:
		return core.StageResearch
	case s.Config.EnableCritique:
		return core.StageCritique
	default:
		return core.StageTerminal
	}
}

// AfterAnalyze decides whether to run another interview cycle.
//
//	interviewCycle < maxInterviewCycles -> Research
//	enableCritique                      -> Critique
//	otherwise                           -> Generate
func AfterAnalyze(s core.GraphState) core.StageID {
	switch {
	case s.InterviewCycle < s.Config.MaxInterviewCycles:
		return core.StageResearch
	case s.Config.EnableCritique:
		return core.StageCritique
	default:
		return core.StageGenerate
	}
}

// AfterCritique decides whether to refine again.
//
//	critique approved                  -> Terminal
//	iterationCount >= maxIterations    -> Terminal
//	otherwise                          -> Generate
func AfterCritique(s core.GraphState) core.StageID {
	switch {
	case s.Critique != nil && s.Critique.IsApproved:
		return core.StageTerminal
	case s.IterationCount >= s.Config.MaxIterations:
		return core.StageTerminal
	default:
		return core.StageGenerate
	}
}

// Next is the total transition function of the stage graph. It never calls
// collaborators; unknown stages and Terminal map to Terminal.
func Next(from core.StageID, s core.GraphState) core.StageID {
	switch from {
	case core.StageGenerate:
		return AfterGenerate(s)
	case core.StageResearch:
		return core.StageRecruit
	case core.StageRecruit:
		return core.StageSimulate
	case core.StageSimulate:
		return core.StageAnalyze
	case core.StageAnalyze:
		return AfterAnalyze(s)
	case core.StageCritique:
		return AfterCritique(s)
	case core.StageTerminal:
		return core.StageTerminal
	default:
		return core.StageTerminal
	}
}
