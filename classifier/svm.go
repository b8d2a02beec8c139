package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// fitLinearSVM은 y ∈ {-1, +1}에 대해 λ/2·‖(w,b)‖² + 평균 hinge loss를
// 전체 배치 Pegasos subgradient 하강으로 최소화한다. 무작위성이 없어 결과가 항상 같다.
// 편향 b는 값이 1인 특징처럼 다뤄서 함께 정규화한다.
func fitLinearSVM(x *mat.Dense, y []float64, lambda float64, iterations int) ([]float64, float64) {
	n, dim := x.Dims()
	w := make([]float64, dim)
	b := 0.0
	grad := make([]float64, dim)
	radius := 1 / math.Sqrt(lambda)

	for t := 1; t <= iterations; t++ {
		eta := 1 / (lambda * float64(t))

		clear(grad)
		gradB := 0.0
		for i := range n {
			row := x.RawRowView(i)
			if y[i]*(floats.Dot(w, row)+b) < 1 {
				floats.AddScaled(grad, y[i], row)
				gradB += y[i]
			}
		}

		shrink := 1 - eta*lambda
		step := eta / float64(n)
		floats.Scale(shrink, w)
		floats.AddScaled(w, step, grad)
		b = shrink*b + step*gradB

		// 해는 반지름 1/√λ 공 안에 있으므로 밖으로 나간 반복값은 공 위로 투영한다.
		norm := math.Hypot(floats.Norm(w, 2), b)
		if norm > radius {
			scale := radius / norm
			floats.Scale(scale, w)
			b *= scale
		}
	}
	return w, b
}
