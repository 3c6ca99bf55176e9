package narration

// wordsPerSecond is the narration pacing rate used throughout S10's
// budget and duration-prediction math (spec §4.3-S10).
const wordsPerSecond = 2.5

// introOutroReserveSeconds is subtracted from target duration before
// distributing the remainder across chapters (spec §4.3-S10: "(target
// seconds − 30) / chapter_count").
const introOutroReserveSeconds = 30.0

// predictionReserveSeconds is added back when predicting total runtime
// from a word count (spec §4.3-S10: "total_words / 2.5 + 25s reserve").
const predictionReserveSeconds = 25.0

const (
	minChapterWordBudget = 160
	maxChapterWordBudget = 420
)

// WordBudgets computes the per-chapter word target for strategy 2
// (spec §4.3-S10): if targetSeconds > 0, distribute (target_seconds −
// 30) / chapter_count × 2.2 words/sec across every chapter evenly;
// otherwise each chapter gets max(chapter_duration × 2.5, 30×2.5) words.
func WordBudgets(chapters []Chapter, targetSeconds float64) []int {
	budgets := make([]int, len(chapters))
	if len(chapters) == 0 {
		return budgets
	}

	if targetSeconds > 0 {
		perChapterSeconds := (targetSeconds - introOutroReserveSeconds) / float64(len(chapters))
		if perChapterSeconds < 0 {
			perChapterSeconds = 0
		}
		words := int(perChapterSeconds * 2.2)
		for i := range budgets {
			budgets[i] = words
		}
		return budgets
	}

	for i, ch := range chapters {
		budgets[i] = int(maxFloat(ch.Duration()*wordsPerSecond, 30*wordsPerSecond))
	}
	return budgets
}

// PredictedDurationSeconds estimates total narration runtime from a
// total word count (spec §4.3-S10).
func PredictedDurationSeconds(totalWords int) float64 {
	return float64(totalWords)/wordsPerSecond + predictionReserveSeconds
}

// BoostedWordBudgets scales every budget by target/predicted × 1.15,
// clamped per-chapter to [160, 420] words (spec §4.3-S10: "retry
// strategy 2 once with boosted word targets").
func BoostedWordBudgets(budgets []int, targetSeconds, predictedSeconds float64) []int {
	if predictedSeconds <= 0 {
		return budgets
	}
	scale := targetSeconds / predictedSeconds * 1.15

	boosted := make([]int, len(budgets))
	for i, b := range budgets {
		v := int(float64(b) * scale)
		if v < minChapterWordBudget {
			v = minChapterWordBudget
		}
		if v > maxChapterWordBudget {
			v = maxChapterWordBudget
		}
		boosted[i] = v
	}
	return boosted
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
