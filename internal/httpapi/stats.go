package httpapi

import "github.com/prometheus/client_golang/prometheus"

// cacheCounters sums the cache hit and miss counters across namespaces from
// the default registry, so /stats reflects the same numbers /metrics exports.
func cacheCounters() (hits, misses float64) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0, 0
	}
	for _, mf := range families {
		var into *float64
		switch mf.GetName() {
		case "concierge_cache_hits_total":
			into = &hits
		case "concierge_cache_misses_total":
			into = &misses
		default:
			continue
		}
		for _, m := range mf.GetMetric() {
			*into += m.GetCounter().GetValue()
		}
	}
	return hits, misses
}
