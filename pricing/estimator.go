package pricing

import "math"

// OutputParams models the expected response size for one analysis mode:
// a fixed base plus a linear per-minute-of-content term. Deep mode's base
// and coefficient both exceed standard's.
type OutputParams struct {
	BaseUnits      int     `json:"base_units" yaml:"base_units"`
	UnitsPerMinute float64 `json:"units_per_minute" yaml:"units_per_minute"`
}

// EstimatorParams holds the empirical constants behind pre-flight token
// estimates. They are deliberately conservative: the estimate exists only
// to reject unaffordable requests up front, and the authoritative charge
// always uses real vendor-reported usage.
type EstimatorParams struct {
	// VideoUnitsPerSecond is how many input units one second of video
	// consumes after vendor-side frame and audio tokenization.
	VideoUnitsPerSecond float64 `json:"video_units_per_second" yaml:"video_units_per_second"`
	// CharsPerUnit is the plain-text heuristic divisor (~4 chars/token).
	CharsPerUnit int `json:"chars_per_unit" yaml:"chars_per_unit"`
	// ReadingCharsPerMinute converts article length into content minutes
	// for the output-size model.
	ReadingCharsPerMinute int `json:"reading_chars_per_minute" yaml:"reading_chars_per_minute"`
	// PromptOverheadUnits is the fixed instruction-prompt cost added to
	// every input estimate.
	PromptOverheadUnits int `json:"prompt_overhead_units" yaml:"prompt_overhead_units"`

	Standard OutputParams `json:"standard" yaml:"standard"`
	Deep     OutputParams `json:"deep" yaml:"deep"`
}

// Estimate is a pre-flight projection of input/output unit consumption.
// Both counts are non-negative.
type Estimate struct {
	InputUnits  int `json:"input_units"`
	OutputUnits int `json:"output_units"`
}

// Usage converts the estimate into a Usage value so it can be priced with
// the same calculator that bills real consumption.
func (e Estimate) Usage() Usage {
	return Usage{PromptUnits: e.InputUnits, CandidateUnits: e.OutputUnits}
}

// Estimator produces conservative token estimates for content that has
// not been analyzed yet. It is deterministic: identical inputs always
// yield identical outputs. Invalid inputs clamp to zero rather than
// erroring; this is a best-effort pre-check, not the authoritative bill.
type Estimator struct {
	params  EstimatorParams
	counter *tokenCounter
}

// NewEstimator creates an Estimator over the given constants.
func NewEstimator(params EstimatorParams) *Estimator {
	return &Estimator{params: params, counter: newTokenCounter()}
}

// EstimateVideo projects usage for a video of the given duration.
func (e *Estimator) EstimateVideo(durationSeconds float64, mode Mode) Estimate {
	if durationSeconds < 0 || math.IsNaN(durationSeconds) {
		durationSeconds = 0
	}
	input := durationSeconds*e.params.VideoUnitsPerSecond + float64(e.params.PromptOverheadUnits)
	return Estimate{
		InputUnits:  int(math.Ceil(input)),
		OutputUnits: e.outputUnits(durationSeconds/60, mode),
	}
}

// EstimateText projects usage for an article of the given character
// length, using the chars-per-unit heuristic.
func (e *Estimator) EstimateText(charLength int, mode Mode) Estimate {
	if charLength < 0 {
		charLength = 0
	}
	cpu := e.params.CharsPerUnit
	if cpu <= 0 {
		cpu = defaultCharsPerUnit
	}
	input := charLength/cpu + e.params.PromptOverheadUnits
	return Estimate{
		InputUnits:  input,
		OutputUnits: e.outputUnits(e.contentMinutes(charLength), mode),
	}
}

// EstimateTextExact is like EstimateText but counts the actual text with
// a real tokenizer when an encoding is known for the model, falling back
// to the character heuristic otherwise. Still deterministic per input.
func (e *Estimator) EstimateTextExact(text, modelID string, mode Mode) Estimate {
	cpu := e.params.CharsPerUnit
	if cpu <= 0 {
		cpu = defaultCharsPerUnit
	}
	input := e.counter.count(modelID, text, cpu) + e.params.PromptOverheadUnits
	return Estimate{
		InputUnits:  input,
		OutputUnits: e.outputUnits(e.contentMinutes(len(text)), mode),
	}
}

func (e *Estimator) contentMinutes(charLength int) float64 {
	cpm := e.params.ReadingCharsPerMinute
	if cpm <= 0 {
		return 0
	}
	return float64(charLength) / float64(cpm)
}

func (e *Estimator) outputUnits(contentMinutes float64, mode Mode) int {
	if contentMinutes < 0 {
		contentMinutes = 0
	}
	p := e.params.Standard
	if mode == ModeDeep {
		p = e.params.Deep
	}
	return p.BaseUnits + int(math.Ceil(contentMinutes*p.UnitsPerMinute))
}
