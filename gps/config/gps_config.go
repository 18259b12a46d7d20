package gps_config

type Config struct { //nolint:maligned
	// modem|nmea
	Source string `hcl:"source"`

	GnssConfig     int `hcl:"gnss_config"`
	FetchTimeoutMs int `hcl:"fetch_timeout_ms"`
	WarmupSec      int `hcl:"warmup_sec"`

	NmeaDevice   string `hcl:"nmea_device"`
	NmeaBaud     int    `hcl:"nmea_baud"`
	NmeaMaxLines int    `hcl:"nmea_max_lines"`
}
