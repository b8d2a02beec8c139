package match

import (
	"math"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/pkg/errors"

	"github.com/zrma/go-wakeword/mfcc"
)

const (
	// locateFFTThresholdOps는 FFT 기반 상관 계산이 이득이 될 가능성이 높은 대략적인 연산량 기준이다.
	// (naive: O((N-M+1)*M*D), FFT: O(D*n*log2(n)))
	locateFFTThresholdOps = 5_000_000

	// locateMaxFFTSize는 너무 큰 FFT로 메모리 사용이 폭증하는 것을 막는다.
	locateMaxFFTSize = 1 << 22

	// c0는 음량에 따라 크게 변하므로 위치 탐색 거리에서는 1번 계수부터 본다.
	locateStartCoeff = 1
)

// Location은 긴 녹음 안에서 템플릿이 가장 잘 맞는 위치다.
type Location struct {
	// Frame은 녹음 행렬에서 템플릿 첫 프레임이 놓이는 프레임 인덱스다.
	Frame int
	// Distance는 정렬 구간의 프레임별 제곱 거리 합이다. c0는 제외한다.
	Distance float64
}

// Offset은 프레임 간격 hop을 곱해 시간 오프셋으로 바꾼다.
func (l Location) Offset(hop time.Duration) time.Duration {
	return time.Duration(l.Frame) * hop
}

// Locate는 recording 안에서 template과의 제곱 거리 합이 최소가 되는 프레임 위치를 찾는다.
// 입력이 크면 FFT 상관으로 계산하고, 그렇지 않으면 조기 종료하는 단순 탐색을 쓴다.
func Locate(recording, template *mfcc.Matrix) (Location, error) {
	n, coeffCount := recording.Shape()
	m, templateCoeffs := template.Shape()
	switch {
	case n == 0 || m == 0:
		return Location{}, errors.Wrap(mfcc.ErrInput, "empty feature matrix")
	case coeffCount != templateCoeffs:
		return Location{}, errors.Wrapf(mfcc.ErrConfigMismatch, "template has %d coefficients, recording has %d", templateCoeffs, coeffCount)
	case m > n:
		return Location{}, errors.Wrapf(mfcc.ErrInput, "template (%d frames) is longer than recording (%d frames)", m, n)
	}

	startCoeff := locateStartCoeff
	if coeffCount <= startCoeff {
		startCoeff = 0
	}

	whole, chunk := recording.Rows(), template.Rows()
	dim := coeffCount - startCoeff
	naiveOps := int64(n-m+1) * int64(m) * int64(dim)
	if n >= 2048 && m >= 128 && naiveOps >= locateFFTThresholdOps {
		if loc, ok := locateFFT(whole, chunk, coeffCount, startCoeff); ok {
			return loc, nil
		}
	}
	return locateNaive(whole, chunk, coeffCount, startCoeff), nil
}

func locateNaive(whole, chunk [][]float64, coeffCount, startCoeff int) Location {
	best := Location{Distance: math.MaxFloat64}

	limit := len(whole) - len(chunk) + 1
	for i := range limit {
		distance := 0.0
	loop:
		for j, chunkFrame := range chunk {
			wholeFrame := whole[i+j]
			for k := startCoeff; k < coeffCount; k++ {
				diff := wholeFrame[k] - chunkFrame[k]
				distance += diff * diff
				if distance >= best.Distance {
					break loop
				}
			}
		}
		if distance < best.Distance {
			best = Location{Frame: i, Distance: distance}
		}
	}
	return best
}

// locateFFT는 |w-c|² = |w|² + |c|² - 2<w,c>로 풀어 상관 항을 계수별 FFT 컨볼루션으로 구한다.
func locateFFT(whole, chunk [][]float64, coeffCount, startCoeff int) (Location, bool) {
	n, m := len(whole), len(chunk)
	nFFT := nextPow2(n + m - 1)
	if nFFT > locateMaxFFTSize {
		return Location{}, false
	}
	outLen := n - m + 1

	prefix := make([]float64, n+1)
	for i, frame := range whole {
		sum := 0.0
		for k := startCoeff; k < coeffCount; k++ {
			sum += frame[k] * frame[k]
		}
		prefix[i+1] = prefix[i] + sum
	}

	chunkEnergy := 0.0
	for _, frame := range chunk {
		for k := startCoeff; k < coeffCount; k++ {
			chunkEnergy += frame[k] * frame[k]
		}
	}

	// corrSum[offset] = sum_k sum_j whole[offset+j,k]*chunk[j,k]
	corrSum := make([]float64, outLen)
	fa := make([]float64, nFFT)
	fb := make([]float64, nFFT)
	product := make([]complex128, nFFT)
	for coeff := startCoeff; coeff < coeffCount; coeff++ {
		clear(fa)
		clear(fb)
		for i, frame := range whole {
			fa[i] = frame[coeff]
		}
		// 뒤집은 청크와의 컨볼루션이 곧 상관이다.
		for j := range m {
			fb[j] = chunk[m-1-j][coeff]
		}

		sa, sb := fft.FFTReal(fa), fft.FFTReal(fb)
		for i := range product {
			product[i] = sa[i] * sb[i]
		}
		conv := fft.IFFT(product)

		for offset := range outLen {
			corrSum[offset] += real(conv[offset+m-1])
		}
	}

	best := Location{Distance: math.Inf(1)}
	for offset := range outLen {
		distance := prefix[offset+m] - prefix[offset] + chunkEnergy - 2*corrSum[offset]
		if distance < best.Distance {
			best = Location{Frame: offset, Distance: distance}
		}
	}
	best.Distance = max(best.Distance, 0)
	return best, true
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
