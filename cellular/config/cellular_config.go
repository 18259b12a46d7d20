// Separate package is workaround to import cycles.
package cellular_config

type Config struct { //nolint:maligned
	Enabled          bool   `hcl:"enable"`
	Mode             string `hcl:"mode"` // socket|qhttp
	Apn              string `hcl:"apn"`
	ApnUser          string `hcl:"apn_user"`
	ApnPassword      string `hcl:"apn_password"` // secret
	ContextId        int    `hcl:"context_id"`
	SocketId         int    `hcl:"socket_id"`
	ReadChunk        int    `hcl:"read_chunk"`
	ReadAttempts     int    `hcl:"read_attempts"`
	SocketTimeoutSec int    `hcl:"socket_timeout_sec"`
	AttachTimeoutSec int    `hcl:"attach_timeout_sec"`
	SimTimeoutSec    int    `hcl:"sim_timeout_sec"`
	RegCheckMs       int    `hcl:"reg_check_ms"`
	ReadyRefreshSec  int    `hcl:"ready_refresh_sec"`
	QhttpTimeoutSec  int    `hcl:"qhttp_timeout_sec"`
}
