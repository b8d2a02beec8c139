package mfcc

import "github.com/pkg/errors"

// 엔진 전반에서 errors.Is로 구분하는 오류 분류.
// 호출부는 errors.Wrapf(ErrInput, ...)처럼 감싸서 반환한다.
var (
	// ErrInput은 비어 있거나 잘못된 파형, 설정, 읽을 수 없는 오디오 컨테이너를 뜻한다.
	ErrInput = errors.New("invalid input")
	// ErrConfigMismatch는 평탄화된 특징 길이가 모델 차원이나 기존 샘플과 다를 때 반환된다.
	ErrConfigMismatch = errors.New("feature configuration mismatch")
	// ErrInsufficientData는 학습에 필요한 샘플/라벨 수가 부족함을 알린다. 실패가 아니라 상태다.
	ErrInsufficientData = errors.New("not enough data")
	// ErrStorage는 저장된 템플릿이나 모델 아티팩트가 없거나 손상되었음을 뜻한다.
	ErrStorage = errors.New("storage error")
)
