package commands

import "time"

const (
	defaultCheckpointInterval = time.Minute
	defaultEventRetention     = 90 * 24 * time.Hour
	defaultSweepInterval      = 10 * time.Minute
)

func secs(s uint64) time.Duration {
	return time.Duration(s) * time.Second
}
