// Package statistics tracks each chain's recent nonce-range throughput
// as a rolling per-second series, the way the teacher's driver reports
// a 3-bucket (1m/5m/15m-equivalent) hashrate summary in
// types.DriverStates.Hashrate.
package statistics

// seriesLen is one hour of per-second samples.
const seriesLen = 3600

// HashRate is a fixed-size ring buffer of per-second sample values.
type HashRate struct {
	dataSeries [seriesLen]float64
	currentPos int
}

// Add records one second's sample (nonce-ranges-processed-equivalent
// hash count for that tick).
func (hr *HashRate) Add(num float64) {
	hr.currentPos = (hr.currentPos + 1) % seriesLen
	hr.dataSeries[hr.currentPos] = num
}

// RecentNSum sums the most recent recentn samples (recentn <= seriesLen).
func (hr *HashRate) RecentNSum(recentn int) (sum float64) {
	if recentn > seriesLen {
		recentn = seriesLen
	}
	pos := 0
	for i := 0; i < recentn; i++ {
		pos = hr.currentPos - i
		if pos < 0 {
			pos += seriesLen
		}
		sum += hr.dataSeries[pos]
	}
	return
}

// ChainRate bundles one chain's rolling hash-rate series with its
// chain id, and reports the three windows the status API exposes:
// 30s, 300s, and 900s averages, matching the 3-bucket
// [instant, medium, long] shape of types.DriverStates.Hashrate.
type ChainRate struct {
	ChainID int
	rate    HashRate
}

// NewChainRate builds a tracker for the given chain id.
func NewChainRate(chainID int) *ChainRate {
	return &ChainRate{ChainID: chainID}
}

// Tick records this second's nonce-space throughput (hashes/sec).
func (r *ChainRate) Tick(hashesThisSecond float64) {
	r.rate.Add(hashesThisSecond)
}

// Windows returns [30s, 300s, 900s] average hashes/sec.
func (r *ChainRate) Windows() [3]float64 {
	return [3]float64{
		r.rate.RecentNSum(30) / 30,
		r.rate.RecentNSum(300) / 300,
		r.rate.RecentNSum(900) / 900,
	}
}
