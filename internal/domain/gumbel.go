package domain

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Gumbel reduced-variate scaling constants relating sample moments to the
// standard Gumbel distribution: sqrt(6)/pi and Euler-Mascheroni*sqrt(6)/pi.
const (
	gumbelScale = 0.7797
	gumbelShift = 0.45
)

// MinAnnualMaxima is the smallest sample with a defined sample standard deviation.
const MinAnnualMaxima = 2

// StandardReturnPeriods are the return periods, in years, written for every unit.
var StandardReturnPeriods = []int{2, 5, 10, 25, 50, 100}

// GumbelParameters are the method-of-moments statistics of an annual maxima sample.
type GumbelParameters struct {
	Mean   float64
	StdDev float64 // Bessel-corrected
	N      int
}

// FitGumbel computes the sample mean and standard deviation of maxima.
func FitGumbel(maxima []float64) (GumbelParameters, error) {
	if len(maxima) < MinAnnualMaxima {
		return GumbelParameters{}, &InsufficientSampleError{Unit: -1, Got: len(maxima), Need: MinAnnualMaxima}
	}
	mean, std := stat.MeanStdDev(maxima, nil)
	return GumbelParameters{Mean: mean, StdDev: std, N: len(maxima)}, nil
}

// Flow solves the Gumbel Type I quantile for return period T years.
// Results are not clipped; negative flows pass through.
func (p GumbelParameters) Flow(T float64) (float64, error) {
	if math.IsNaN(T) || T <= 1 {
		return 0, fmt.Errorf("%w: %v (must be > 1)", ErrInvalidReturnPeriod, T)
	}
	reduced := -math.Log(-math.Log(1 - 1/T))
	return reduced*p.StdDev*gumbelScale + p.Mean - gumbelShift*p.StdDev, nil
}

// ReturnPeriodEstimate maps a return period in years to its estimated value.
type ReturnPeriodEstimate map[int]float64

// Periods returns the estimate's return periods in ascending order.
func (e ReturnPeriodEstimate) Periods() []int {
	out := make([]int, 0, len(e))
	for t := range e {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// EstimateReturnPeriods fits maxima and evaluates every requested period.
func EstimateReturnPeriods(maxima []float64, periods []int) (ReturnPeriodEstimate, error) {
	params, err := FitGumbel(maxima)
	if err != nil {
		return nil, err
	}
	est := make(ReturnPeriodEstimate, len(periods))
	for _, t := range periods {
		v, err := params.Flow(float64(t))
		if err != nil {
			return nil, err
		}
		est[t] = v
	}
	return est, nil
}

// ReturnPeriodVariable names the output variable holding the T-year estimate.
func ReturnPeriodVariable(t int) string {
	return fmt.Sprintf("return_period_%d", t)
}
