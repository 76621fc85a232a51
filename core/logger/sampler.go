package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets through the first n of every d calls.
type ratioSampler struct {
	ratio   atomic.Uint64 // n<<32 | d, zero disables sampling
	counter atomic.Uint64
}

func newRatioSampler(n, d int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(n, d)
	return s
}

// Set replaces the ratio. Non-positive values turn sampling off.
func (s *ratioSampler) Set(n, d int) {
	var packed uint64
	if n > 0 && d > 0 {
		packed = uint64(min(n, d))<<32 | uint64(d)
	}
	s.ratio.Store(packed)
	s.counter.Store(0)
}

func (s *ratioSampler) Allow() bool {
	packed := s.ratio.Load()
	if packed == 0 {
		return true
	}
	n, d := packed>>32, packed&0xffffffff
	return (s.counter.Add(1)-1)%d < n
}

// parseRatioSpec accepts "n/d" or a bare "d" meaning 1/d.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 == nil && err2 == nil {
			return n, d
		}
		return 0, 0
	}
	if d, err := strconv.Atoi(spec); err == nil && d > 0 {
		return 1, d
	}
	return 0, 0
}
