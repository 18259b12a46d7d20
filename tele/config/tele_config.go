// Separate package is workaround to import cycles.
package tele_config

const (
	TransportAuto  = "auto"
	TransportMqtt  = "mqtt"
	TransportModem = "modem"
)

type Config struct { //nolint:maligned
	Enabled           bool   `hcl:"enable"`
	LogDebug          bool   `hcl:"log_debug"`
	Transport         string `hcl:"transport"` // auto|mqtt|modem
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttUsername      string `hcl:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password"` // secret
	ClientId          string `hcl:"client_id"`
	TopicPrefix       string `hcl:"topic_prefix"`
	IntervalSec       int    `hcl:"interval_sec"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	PingTimeoutSec    int    `hcl:"ping_timeout_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	StorePath         string `hcl:"store_path"`
}
