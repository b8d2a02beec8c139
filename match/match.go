// Package match는 MFCC 행렬을 라벨이 붙은 템플릿과 비교한다.
package match

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/zrma/go-wakeword/mfcc"
)

// Template은 라벨이 붙은 참조 MFCC 행렬이다.
type Template struct {
	Label    string
	Features *mfcc.Matrix
}

// Result는 Match의 결과다. Found가 false이면 Label과 Distance는 의미가 없다.
type Result struct {
	Label    string
	Distance float64
	Found    bool
}

// Match는 query와 프레임 평균 벡터의 유클리드 거리가 가장 가까운 템플릿의 라벨을 고른다.
// 거리가 같으면 먼저 나온 템플릿이 이긴다. 비어 있거나 계수 수가 다른 템플릿은 건너뛴다.
func Match(query *mfcc.Matrix, templates []Template) Result {
	if query.NumFrames() == 0 {
		return Result{}
	}

	queryMean := query.Mean()
	best := Result{Distance: math.Inf(1)}
	for _, tmpl := range templates {
		if tmpl.Features.NumFrames() == 0 || tmpl.Features.NumCoefficients() != len(queryMean) {
			continue
		}

		d := floats.Distance(queryMean, tmpl.Features.Mean(), 2)
		if d < best.Distance {
			best = Result{Label: tmpl.Label, Distance: d, Found: true}
		}
	}
	if !best.Found {
		return Result{}
	}
	return best
}
