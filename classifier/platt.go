package classifier

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// fitPlatt는 결정값 f에 대해 p = 1/(1+exp(A·f+B))를 맞춘다.
// 목표값은 Platt의 평활화 값(양성 (N₊+1)/(N₊+2), 음성 1/(N₋+2))을 쓴다.
// 최적화가 실패하면 결정값을 그대로 쓰는 A=-1, B=0으로 되돌린다.
func fitPlatt(scores, y []float64) (float64, float64) {
	var nPos, nNeg float64
	for _, v := range y {
		if v > 0 {
			nPos++
		} else {
			nNeg++
		}
	}

	targets := make([]float64, len(y))
	for i, v := range y {
		if v > 0 {
			targets[i] = (nPos + 1) / (nPos + 2)
		} else {
			targets[i] = 1 / (nNeg + 2)
		}
	}

	// z = A·f + B일 때 음의 로그 우도는 Σ softplus(z) - (1-t)·z이다.
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			loss := 0.0
			for i, f := range scores {
				z := x[0]*f + x[1]
				loss += softplus(z) - (1-targets[i])*z
			}
			return loss
		},
		Grad: func(grad, x []float64) {
			grad[0], grad[1] = 0, 0
			for i, f := range scores {
				z := x[0]*f + x[1]
				d := sigmoid(z) - (1 - targets[i])
				grad[0] += d * f
				grad[1] += d
			}
		},
	}

	x0 := []float64{0, math.Log((nNeg + 1) / (nPos + 1))}
	// 수렴 판정 오류가 나도 result에는 지금까지의 최선값이 들어 있다.
	result, _ := optimize.Minimize(problem, x0, nil, &optimize.BFGS{})
	if result == nil || len(result.X) != 2 {
		return -1, 0
	}
	a, b := result.X[0], result.X[1]
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) || a >= 0 {
		return -1, 0
	}
	return a, b
}

func plattProbability(f, a, b float64) float64 {
	return sigmoid(-(a*f + b))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus는 log(1+exp(z))를 넘침 없이 계산한다.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
