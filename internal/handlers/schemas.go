package handlers

type PoolRow struct {
	Endpoint   string   `json:"endpoint"`
	Fee        float64  `json:"fee,omitempty"`
	LatencyMS  *float64 `json:"latencyMs,omitempty"`
	LastTested *string  `json:"lastTested,omitempty"`
}
