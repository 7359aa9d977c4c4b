package progression

import "math"

// Mastery returns a 0-100 competence score for a set of scores:
//
//	round(100*(0.5*mean/100 + 0.3*min(n/10, 1) + 0.2*consistency))
//
// consistency is max(0, 1 - stddev/50) using the population deviation. With
// fewer than three samples the deviation is not meaningful and consistency
// is 0.5. No samples yields 0.
func Mastery(scores []int) int {
	n := len(scores)
	if n == 0 {
		return 0
	}

	var sum float64
	for _, s := range scores {
		sum += float64(clamp(s, 0, 100))
	}
	mean := sum / float64(n)

	consistency := 0.5
	if n >= 3 {
		var sq float64
		for _, s := range scores {
			d := float64(clamp(s, 0, 100)) - mean
			sq += d * d
		}
		stddev := math.Sqrt(sq / float64(n))
		consistency = math.Max(0, 1-stddev/50)
	}

	volume := math.Min(float64(n)/10, 1)
	m := int(math.Round(100 * (0.5*mean/100 + 0.3*volume + 0.2*consistency)))
	return clamp(m, 0, 100)
}

// roundedMean returns the mean of scores rounded half away from zero.
func roundedMean(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	var sum int
	for _, s := range scores {
		sum += clamp(s, 0, 100)
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}
