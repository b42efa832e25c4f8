package agent

import (
	"time"
)

// Default intervals for different tasks
const (
	DefaultTimelineInterval = 2 * time.Minute
	DefaultFollowUpInterval = 10 * time.Minute
)

// Task Types
const (
	TaskTimeline TaskType = "timeline"  // Ingests the home timeline
	TaskFollowUp TaskType = "follow_up" // Resolves leftover dangling references
)

// DefaultTaskConfigs provides the default configuration for all supported tasks
var DefaultTaskConfigs = map[TaskType]TaskConfig{
	TaskTimeline: {
		Enabled:  true,
		Interval: DefaultTimelineInterval,
		Metadata: TaskMetadata{
			Description: "Fetches new home timeline tweets and resolves their references",
		},
	},
	TaskFollowUp: {
		Enabled:  true,
		Interval: DefaultFollowUpInterval,
		Metadata: TaskMetadata{
			Description: "Periodically re-runs reference resolution for stragglers",
		},
	},
}

// IsTaskEnabled reports whether taskType is enabled in configs
func IsTaskEnabled(configs map[TaskType]TaskConfig, taskType TaskType) bool {
	if config, exists := configs[taskType]; exists {
		return config.Enabled
	}
	return false
}

// GetTaskInterval returns the configured interval for taskType
func GetTaskInterval(configs map[TaskType]TaskConfig, taskType TaskType) time.Duration {
	if config, exists := configs[taskType]; exists && config.Interval > 0 {
		return config.Interval
	}
	// Return a safe default
	return 5 * time.Minute
}
