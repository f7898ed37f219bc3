package axeos

// SystemInfo mirrors the device's GET /api/system/info document. Temp is a
// pointer so a missing reading is distinguishable from zero; callers
// substitute a conservative value before feeding the tuner.
type SystemInfo struct {
	Power             float64  `json:"power"`
	Voltage           float64  `json:"voltage"`
	Current           float64  `json:"current"`
	Temp              *float64 `json:"temp"`
	VRTemp            float64  `json:"vrTemp"`
	HashRate          float64  `json:"hashRate"`
	BestDiff          string   `json:"bestDiff"`
	BestSessionDiff   string   `json:"bestSessionDiff"`
	FreeHeap          int64    `json:"freeHeap"`
	CoreVoltage       int      `json:"coreVoltage"`
	CoreVoltageActual int      `json:"coreVoltageActual"`
	Frequency         int      `json:"frequency"`
	Hostname          string   `json:"hostname"`
	MacAddr           string   `json:"macAddr"`
	SSID              string   `json:"ssid"`
	WifiStatus        string   `json:"wifiStatus"`
	SharesAccepted    int64    `json:"sharesAccepted"`
	SharesRejected    int64    `json:"sharesRejected"`
	UptimeSeconds     int64    `json:"uptimeSeconds"`
	ASICModel         string   `json:"ASICModel"`

	StratumURL          string `json:"stratumURL"`
	StratumPort         int    `json:"stratumPort"`
	StratumUser         string `json:"stratumUser"`
	FallbackStratumURL  string `json:"fallbackStratumURL"`
	FallbackStratumPort int    `json:"fallbackStratumPort"`
	FallbackStratumUser string `json:"fallbackStratumUser"`

	IsUsingFallbackStratum bool `json:"isUsingFallbackStratum"`

	FanSpeed int `json:"fanspeed"`
	FanRPM   int `json:"fanrpm"`

	Version      string `json:"version"`
	BoardVersion string `json:"boardVersion"`
}

// settingsPatch is the PATCH /api/system body for an operating point change.
type settingsPatch struct {
	CoreVoltage int `json:"coreVoltage"`
	Frequency   int `json:"frequency"`
}

// stratumPatch is the PATCH /api/system body for a stratum assignment.
type stratumPatch struct {
	StratumURL          string `json:"stratumURL"`
	StratumPort         int    `json:"stratumPort"`
	StratumUser         string `json:"stratumUser"`
	FallbackStratumURL  string `json:"fallbackStratumURL"`
	FallbackStratumPort int    `json:"fallbackStratumPort"`
	FallbackStratumUser string `json:"fallbackStratumUser"`
}
