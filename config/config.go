// Package config loads the environment-controlled scheduler
// configuration: process-wide, read once at scheduler
// construction, with every invalid value reported together rather than
// one at a time.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/swarmguard/dagsched/dispatch"
	"github.com/swarmguard/dagsched/schederr"
)

// Config is the fully-parsed scheduler configuration.
type Config struct {
	TaskExecution dispatch.TaskExecutionMode
	DataTransfer  dispatch.DataTransferMode
	Dispatch      dispatch.DispatchMode

	Algorithm string // empty means "caller selects explicitly"

	RetryAttempts  int
	RetryBaseDelay time.Duration

	ResultDBPath string // empty means in-memory-only result store
}

// Load reads and validates every DAGSCHED_* environment variable in
// one pass, aggregating every invalid value into a single
// ConfigurationError rather than failing on the first one encountered.
func Load() (Config, error) {
	var cfg Config
	var bad []string

	taskExec, err := dispatch.ParseTaskExecutionMode(os.Getenv("TASK_EXECUTION"))
	if err != nil {
		bad = append(bad, "TASK_EXECUTION")
	}
	cfg.TaskExecution = taskExec

	dataTransfer, err := dispatch.ParseDataTransferMode(os.Getenv("DATA_TRANSFER"))
	if err != nil {
		bad = append(bad, "DATA_TRANSFER")
	}
	cfg.DataTransfer = dataTransfer

	dispatchMode, err := dispatch.ParseDispatchMode(os.Getenv("DISPATCH_MODE"))
	if err != nil {
		bad = append(bad, "DISPATCH_MODE")
	}
	cfg.Dispatch = dispatchMode

	cfg.Algorithm = os.Getenv("DAGSCHED_ALGORITHM")

	cfg.RetryAttempts = 3
	if v := os.Getenv("DAGSCHED_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			bad = append(bad, "DAGSCHED_RETRY_ATTEMPTS")
		} else {
			cfg.RetryAttempts = n
		}
	}

	cfg.RetryBaseDelay = 100 * time.Millisecond
	if v := os.Getenv("DAGSCHED_RETRY_BASE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			bad = append(bad, "DAGSCHED_RETRY_BASE_DELAY")
		} else {
			cfg.RetryBaseDelay = d
		}
	}

	cfg.ResultDBPath = os.Getenv("DAGSCHED_RESULT_DB_PATH")

	if len(bad) > 0 {
		return Config{}, schederr.NewConfigurationError(
			"invalid environment configuration: "+strings.Join(bad, ", "),
			schederr.Fields{Task: -1, Host: -1, Names: bad},
		)
	}
	return cfg, nil
}

// DispatchConfig projects the dispatch-relevant fields into a
// dispatch.Config, the shape Scheduler.Run and DispatchDriver expect.
func (cfg Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		TaskExecution: cfg.TaskExecution,
		DataTransfer:  cfg.DataTransfer,
		Dispatch:      cfg.Dispatch,
		Algorithm:     cfg.Algorithm,
	}
}
