// Separate package is workaround to import cycles.
package modem_config

type Config struct { //nolint:maligned
	Device           string `hcl:"device"`
	Baud             int    `hcl:"baud"`
	ReadTimeoutMs    int    `hcl:"read_timeout_ms"`
	CommandTimeoutMs int    `hcl:"command_timeout_ms"`
	SyncTimeoutSec   int    `hcl:"sync_timeout_sec"`
	PowerChip        string `hcl:"power_chip"`
	PowerPin         string `hcl:"power_pin"`
	PowerOffMs       int    `hcl:"power_off_ms"`
	BootSec          int    `hcl:"boot_sec"`
	LogDebug         bool   `hcl:"log_debug"`
}
