// internal/workers/application/submit-application/config.go
package submitapplication

import (
	"time"

	"ethics-review/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := time.Duration(wcfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
