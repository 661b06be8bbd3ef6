package animation

import (
	"fmt"
	"sync"
	"time"

	"silo-be/pkg/clock"
)

const (
	StepDone     = "done"
	StepComplete = "complete"
)

// Step is a named point in an animation, relative to its start.
type Step struct {
	Name string `json:"name"`
	AtMs int64  `json:"at_ms"`
}

func (s Step) Offset() time.Duration {
	return time.Duration(s.AtMs) * time.Millisecond
}

// Plan is the full timeline of one animation view. The last step is always StepComplete.
type Plan struct {
	Steps []Step `json:"steps"`
}

func (p Plan) Duration() time.Duration {
	if len(p.Steps) == 0 {
		return 0
	}
	return p.Steps[len(p.Steps)-1].Offset()
}

// DeepResearch is the research view shown for every web search.
func DeepResearch(sources int) Plan {
	if sources == 0 {
		return Plan{Steps: []Step{{Name: StepDone, AtMs: 500}, {Name: StepComplete, AtMs: 1500}}}
	}
	total := int64(sources)*300 + 1500
	return Plan{Steps: []Step{
		{Name: StepDone, AtMs: total - 1000},
		{Name: StepComplete, AtMs: total},
	}}
}

func Creative() Plan {
	return Plan{Steps: []Step{{Name: StepComplete, AtMs: 1000}}}
}

// ImageAnalysis pops one keyword bubble every 400ms.
func ImageAnalysis(keywords int) Plan {
	var steps []Step
	for i := 0; i < keywords; i++ {
		steps = append(steps, Step{Name: fmt.Sprintf("keyword:%d", i), AtMs: int64(i+1) * 400})
	}
	steps = append(steps, Step{Name: StepComplete, AtMs: int64(keywords)*400 + 1000})
	return Plan{Steps: steps}
}

// Schedule arms one timer per step of a plan.
type Schedule struct {
	mu       sync.Mutex
	timers   []clock.Timer
	canceled bool
}

// Start fires onStep for each step in order. Cancel stops every step not yet fired.
func Start(clk clock.Clock, plan Plan, onStep func(Step)) *Schedule {
	s := &Schedule{}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range plan.Steps {
		step := step
		s.timers = append(s.timers, clk.AfterFunc(step.Offset(), func() {
			s.mu.Lock()
			canceled := s.canceled
			s.mu.Unlock()
			if !canceled {
				onStep(step)
			}
		}))
	}
	return s
}

func (s *Schedule) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
