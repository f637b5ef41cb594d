package download

import (
	"net/url"
	"strings"

	"github.com/tubedash/tubedash/internal/validators"
)

// Outcome selects how a simulated download plays out.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeUnknownSize reports indeterminate progress while downloading.
	OutcomeUnknownSize
	// OutcomeFail fails halfway through the download.
	OutcomeFail
)

// SimulationParam is the query parameter that picks an Outcome for a URL.
const SimulationParam = "tubedash_sim"

// IndeterminateProgress is reported while the total size is unknown.
const IndeterminateProgress = -1

// Step is one persisted state change of a simulated job.
type Step struct {
	Status      string
	Progress    float64
	AspectRatio string
	Error       string
}

// Simulator decides what a download of a given URL looks like.
type Simulator struct {
	registry      *validators.Registry
	progressSteps int
}

// NewSimulator creates a simulator reporting progressSteps download updates.
func NewSimulator(progressSteps int) *Simulator {
	if progressSteps <= 0 {
		progressSteps = 4
	}
	return &Simulator{
		registry:      validators.DefaultRegistry(),
		progressSteps: progressSteps,
	}
}

// OutcomeFor reads the outcome hint from rawURL; anything else succeeds.
func OutcomeFor(rawURL string) Outcome {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return OutcomeSuccess
	}
	switch parsed.Query().Get(SimulationParam) {
	case "fail":
		return OutcomeFail
	case "unknown-size":
		return OutcomeUnknownSize
	default:
		return OutcomeSuccess
	}
}

// AspectRatioFor guesses the frame shape from the platform: shorts, reels
// and TikTok videos are portrait.
func (s *Simulator) AspectRatioFor(rawURL string) string {
	result := s.registry.Validate(rawURL)
	if !result.Valid {
		return UnknownAspectRatio
	}
	if result.SourceType == validators.SourceTikTok || result.MediaType == "short" || result.MediaType == "reel" {
		return "9:16"
	}
	return "16:9"
}

// Plan lists the steps a job for rawURL goes through after leaving the queue.
func (s *Simulator) Plan(rawURL string) []Step {
	outcome := OutcomeFor(rawURL)
	steps := []Step{{Status: StatusDownloading, Progress: 0}}

	for i := 1; i <= s.progressSteps; i++ {
		progress := float64(i*100) / float64(s.progressSteps)
		if outcome == OutcomeUnknownSize {
			progress = IndeterminateProgress
		}
		if outcome == OutcomeFail && i > s.progressSteps/2 {
			return append(steps, Step{Status: StatusFailed, Progress: 0, Error: "simulated download failure"})
		}
		steps = append(steps, Step{Status: StatusDownloading, Progress: progress})
	}

	return append(steps,
		Step{Status: StatusProcessing, Progress: 100},
		Step{Status: StatusProcessing, Progress: 100, AspectRatio: s.AspectRatioFor(rawURL)},
		Step{Status: StatusMoving, Progress: 100},
		Step{Status: StatusCompleted, Progress: 100},
	)
}
