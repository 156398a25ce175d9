package scoring

import "math"

// Result holds every metric of one attempt.
type Result struct {
	Statuses     []CharStatus `json:"statuses"`
	Accuracy     int          `json:"accuracy"`
	WordAccuracy int          `json:"word_accuracy"`
	Progress     int          `json:"progress"`
	WPM          int          `json:"wpm"`
	Mistakes     []Mistake    `json:"mistakes"`
	TimeElapsed  float64      `json:"time_elapsed"`
}

// Evaluate aligns typed against original and computes every metric of the attempt.
func Evaluate(original, typed string, elapsedSeconds float64, lookahead int) Result {
	statuses := Align(original, typed, lookahead)
	return Result{
		Statuses:     statuses,
		Accuracy:     CharAccuracy(statuses),
		WordAccuracy: WordAccuracy(original, typed),
		Progress:     Progress(original, typed),
		WPM:          WPM(typed, elapsedSeconds),
		Mistakes:     WordMistakes(original, typed),
		TimeElapsed:  elapsedSeconds,
	}
}

// Summary aggregates the results of several attempts.
type Summary struct {
	Attempts        int     `json:"attempts"`
	AverageAccuracy float64 `json:"average_accuracy"`
	BestAccuracy    int     `json:"best_accuracy"`
	AverageWPM      float64 `json:"average_wpm"`
	BestWPM         int     `json:"best_wpm"`
	AverageProgress float64 `json:"average_progress"`
	TotalMistakes   int     `json:"total_mistakes"`
}

// Summarize averages the results of several attempts. It returns a zero Summary for none.
func Summarize(results []Result) Summary {
	var sum Summary
	if len(results) == 0 {
		return sum
	}
	var acc, wpm, progress int
	for _, r := range results {
		acc += r.Accuracy
		wpm += r.WPM
		progress += r.Progress
		sum.TotalMistakes += len(r.Mistakes)
		sum.BestAccuracy = max(sum.BestAccuracy, r.Accuracy)
		sum.BestWPM = max(sum.BestWPM, r.WPM)
	}
	n := float64(len(results))
	sum.Attempts = len(results)
	sum.AverageAccuracy = round2(float64(acc) / n)
	sum.AverageWPM = round2(float64(wpm) / n)
	sum.AverageProgress = round2(float64(progress) / n)
	return sum
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
