package uploader_config

type Config struct { //nolint:maligned
	BaseURL      string `hcl:"base_url"`
	ResourceType string `hcl:"resource_type"`
	ResourceId   string `hcl:"resource_id"`
	SensorId     string `hcl:"sensor_id"`
	APIKey       string `hcl:"api_key"`

	IntervalSec int   `hcl:"interval_sec"`
	BackoffSec  []int `hcl:"backoff_sec"`

	// movement filter, disabled when 0
	MinDistanceM float64 `hcl:"min_distance_m"`
	MaxIdleSec   int     `hcl:"max_idle_sec"`

	Wifi struct { //nolint:maligned
		Enabled    bool   `hcl:"enable"`
		Interface  string `hcl:"interface"`
		TimeoutSec int    `hcl:"timeout_sec"`
	} `hcl:"wifi"`
	CellularEnabled bool `hcl:"cellular"`

	PersistBackoff bool `hcl:"persist_backoff"`
}
