package analysis

import "sort"

// superminorityThreshold is the fraction of total stake that can halt
// consensus. The Nakamoto coefficient and the superminority count use the
// same exact fractional threshold; they are one metric conceptually, kept as
// two report fields for continuity with existing dashboards.
const superminorityThreshold = 1.0 / 3.0

// ComputeConcentration computes the scalar concentration indices over a
// descending active-stake distribution. An empty distribution (or zero total)
// yields zero values throughout; an empty snapshot is legitimate input, not
// an error.
func ComputeConcentration(distribution []float64) ConcentrationMetrics {
	total := 0.0
	for _, stake := range distribution {
		total += stake
	}
	if len(distribution) == 0 || total <= 0 {
		return ConcentrationMetrics{}
	}

	nakamoto := prefixCountAtThreshold(distribution, total*superminorityThreshold)

	return ConcentrationMetrics{
		NakamotoCoefficient: nakamoto,
		SuperminorityCount:  nakamoto,
		HHI:                 herfindahl(distribution, total),
		Gini:                gini(distribution, total),
		TopValidatorPct:     topNPct(distribution, total, 1),
		Top10Pct:            topNPct(distribution, total, 10),
		Top20Pct:            topNPct(distribution, total, 20),
		Top50Pct:            topNPct(distribution, total, 50),
	}
}

// prefixCountAtThreshold returns the smallest k such that the cumulative sum
// of the top k entries reaches the threshold.
func prefixCountAtThreshold(distribution []float64, threshold float64) int {
	cumulative := 0.0
	for i, stake := range distribution {
		cumulative += stake
		if cumulative >= threshold {
			return i + 1
		}
	}
	return len(distribution)
}

// herfindahl is the sum of squared market shares, in (0, 1].
func herfindahl(distribution []float64, total float64) float64 {
	hhi := 0.0
	for _, stake := range distribution {
		share := stake / total
		hhi += share * share
	}
	return hhi
}

// gini computes the discrete Gini coefficient. It sorts its own ascending
// copy rather than assuming the reversed input is equivalent; under
// duplicate values the two orderings coincide, but the explicit sort keeps
// the formula honest.
func gini(distribution []float64, total float64) float64 {
	ascending := make([]float64, len(distribution))
	copy(ascending, distribution)
	sort.Float64s(ascending)

	n := len(ascending)
	weighted := 0.0
	for i, stake := range ascending {
		weighted += float64(2*(i+1)-n-1) * stake
	}
	return weighted / (float64(n) * total)
}

// topNPct returns the cumulative stake share of the top n entries as a
// percentage. Short distributions sum whatever is available.
func topNPct(distribution []float64, total float64, n int) float64 {
	if n > len(distribution) {
		n = len(distribution)
	}
	cumulative := 0.0
	for _, stake := range distribution[:n] {
		cumulative += stake
	}
	return cumulative / total * 100
}
