package agent

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/crawler"
	"github.com/birdthread/threader-go/pkg/ingest"
	"github.com/birdthread/threader-go/pkg/interfaces/twitter"
	"github.com/birdthread/threader-go/pkg/store"
)

// TaskType identifies a scheduled agent task
type TaskType string

// Task is a long-running unit of work owned by the agent
type Task interface {
	Run(ctx context.Context) error
	Stop()
}

// TaskMetadata holds additional information about a task
type TaskMetadata struct {
	Description string
}

// TaskConfig holds scheduling configuration for one task
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
	Metadata TaskMetadata
}

// Agent owns the scheduled ingestion and resolution tasks
type Agent struct {
	client      *twitter.TwitterClient
	store       store.Store
	merger      *ingest.Merger
	crawler     *crawler.Crawler
	logger      *logrus.Logger
	tasks       map[TaskType]Task
	tasksMu     sync.RWMutex
	taskConfigs map[TaskType]TaskConfig
}

// Config holds the configuration for the Agent
type Config struct {
	Logger        *logrus.Logger
	TwitterClient *twitter.TwitterClient
	Store         store.Store
	Merger        *ingest.Merger
	Crawler       *crawler.Crawler
	Tasks         map[TaskType]TaskConfig
}
