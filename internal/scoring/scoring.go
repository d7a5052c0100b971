// Package scoring grades a submitted answer sheet.
package scoring

import (
	"math"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Options carries the inputs that are not part of the answer sheet.
type Options struct {
	// NominalTotal is used as the maximum score when the questions carry no marks.
	NominalTotal int
	TimeTaken    time.Duration
}

// Score grades answers (question ID -> selected option index) against questions.
func Score(questions []model.Question, answers map[string]int, opts Options) model.ScoreResult {
	var res model.ScoreResult

	for _, q := range questions {
		res.MaxScore += q.Marks

		selected, ok := answers[q.ID.String()]
		switch {
		case !ok:
			res.UnansweredCount++
		case selected == q.CorrectIndex:
			res.Score += q.Marks
			res.CorrectCount++
		default:
			res.WrongCount++
		}
	}

	if res.MaxScore == 0 {
		res.MaxScore = opts.NominalTotal
	}

	res.Percentage = Percentage(res.Score, res.MaxScore)
	res.Grade = GradeFor(res.Percentage)

	if opts.TimeTaken > 0 {
		res.TimeTakenSeconds = int(opts.TimeTaken / time.Second)
	}
	return res
}

// Percentage rounds score/max to a whole percent, half up, within 0..100.
func Percentage(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	pct := int(math.Floor(float64(score)/float64(maxScore)*100 + 0.5))
	return min(max(pct, 0), 100)
}

// GradeFor maps a percentage to its letter grade.
func GradeFor(percentage int) model.Grade {
	switch {
	case percentage >= 90:
		return model.GradeA
	case percentage >= 80:
		return model.GradeB
	case percentage >= 70:
		return model.GradeC
	case percentage >= 60:
		return model.GradeD
	default:
		return model.GradeF
	}
}
