package animation

import "time"

// Lerp linearly interpolates between a and b. It receives progress t in
// [0, 1] (already eased) and returns the interpolated value.
type Lerp[T any] func(a, b T, t float64) T

// Number is the set of types [LerpNumber] can interpolate.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Tween interpolates between Begin and End values based on progress.
//
// Tween maps the 0-1 range of a transition to any value range or type. Use
// the helper constructors ([TweenFloat64], [TweenNumber]) for common types,
// or create custom tweens with a Lerp function.
type Tween[T any] struct {
	// Begin is the starting value (when t = 0).
	Begin T
	// End is the ending value (when t = 1).
	End T
	// Lerp interpolates between Begin and End.
	Lerp Lerp[T]
}

// Evaluate returns the interpolated value at t (0.0 to 1.0).
// A tween without Lerp jumps to End.
func (tw *Tween[T]) Evaluate(t float64) T {
	if tw.Lerp == nil {
		return tw.End
	}
	return tw.Lerp(tw.Begin, tw.End, t)
}

// LerpFloat64 linearly interpolates between two float64 values.
func LerpFloat64(a, b float64, t float64) float64 {
	return a + (b-a)*t
}

// LerpNumber interpolates any numeric type through float64. Integer results
// are rounded to the nearest value so a transition lands exactly on b at t = 1.
func LerpNumber[T Number](a, b T, t float64) T {
	v := LerpFloat64(float64(a), float64(b), t)
	half := 0.5
	if T(half) != 0 {
		// floating point type
		return T(v)
	}
	if v < 0 {
		return T(v - 0.5)
	}
	return T(v + 0.5)
}

// LerpDuration interpolates between two durations.
func LerpDuration(a, b time.Duration, t float64) time.Duration {
	return a + time.Duration(float64(b-a)*t)
}

// LerpStep switches from a to b once t reaches 0.5. Use it for types that
// have no meaningful in-between values.
func LerpStep[T any](a, b T, t float64) T {
	if t < 0.5 {
		return a
	}
	return b
}

// TweenFloat64 creates a tween for float64 values.
func TweenFloat64(begin, end float64) *Tween[float64] {
	return &Tween[float64]{
		Begin: begin,
		End:   end,
		Lerp:  LerpFloat64,
	}
}

// TweenNumber creates a tween for any numeric type.
func TweenNumber[T Number](begin, end T) *Tween[T] {
	return &Tween[T]{
		Begin: begin,
		End:   end,
		Lerp:  LerpNumber[T],
	}
}
