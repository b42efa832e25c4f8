// Package agent schedules the ingestion and resolution tasks that keep
// the local discussion graph current.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// New creates a new Agent instance
func New(config Config) (*Agent, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	// If no tasks are configured, use default configurations
	if len(config.Tasks) == 0 {
		config.Tasks = DefaultTaskConfigs
	}

	agent := &Agent{
		client:      config.TwitterClient,
		store:       config.Store,
		merger:      config.Merger,
		crawler:     config.Crawler,
		logger:      config.Logger,
		tasks:       make(map[TaskType]Task),
		taskConfigs: config.Tasks,
	}

	if err := agent.initializeTasks(config.Tasks); err != nil {
		return nil, fmt.Errorf("failed to initialize tasks: %w", err)
	}

	return agent, nil
}

// Run starts all enabled agent tasks
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Starting agent with all enabled tasks")

	var wg sync.WaitGroup
	errChan := make(chan error, len(a.tasks))

	// Start all tasks
	a.tasksMu.RLock()
	for taskType, task := range a.tasks {
		wg.Add(1)
		go func(t Task, tt TaskType) {
			defer wg.Done()
			a.logger.WithField("task", tt).Info("Starting task")

			if err := t.Run(ctx); err != nil && err != context.Canceled {
				a.logger.WithError(err).WithField("task", tt).Error("Task failed")
				errChan <- fmt.Errorf("task %s failed: %w", tt, err)
			}
		}(task, taskType)
	}
	a.tasksMu.RUnlock()

	// Block until context is canceled or a task returns an error
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Context canceled, initiating shutdown")
		a.Stop()
		<-done
		a.crawler.Close()
		return ctx.Err()
	case err := <-errChan:
		a.logger.WithError(err).Error("Task error occurred")
		a.Stop()
		<-done
		a.crawler.Close()
		return err
	case <-done:
		a.logger.Info("All tasks completed normally")
		a.crawler.Close()
		return nil
	}
}

// Stop stops all running tasks
func (a *Agent) Stop() {
	a.tasksMu.RLock()
	defer a.tasksMu.RUnlock()

	for taskType, task := range a.tasks {
		a.logger.WithField("task", taskType).Info("Stopping task")
		task.Stop()
	}
}

// AddTask adds a new task to the agent
func (a *Agent) AddTask(taskType TaskType, task Task) error {
	a.tasksMu.Lock()
	defer a.tasksMu.Unlock()

	if _, exists := a.tasks[taskType]; exists {
		return fmt.Errorf("task %s already exists", taskType)
	}

	a.tasks[taskType] = task
	return nil
}

// RemoveTask removes a task from the agent
func (a *Agent) RemoveTask(taskType TaskType) {
	a.tasksMu.Lock()
	defer a.tasksMu.Unlock()

	if task, exists := a.tasks[taskType]; exists {
		task.Stop()
		delete(a.tasks, taskType)
	}
}

func validateConfig(config *Config) error {
	if config.TwitterClient == nil {
		return fmt.Errorf("TwitterClient is required")
	}
	if config.Store == nil {
		return fmt.Errorf("Store is required")
	}
	if config.Merger == nil {
		return fmt.Errorf("Merger is required")
	}
	if config.Crawler == nil {
		return fmt.Errorf("Crawler is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return nil
}

func (a *Agent) initializeTasks(taskConfigs map[TaskType]TaskConfig) error {
	for taskType, config := range taskConfigs {
		if !config.Enabled {
			continue
		}

		var task Task
		switch taskType {
		case TaskTimeline:
			task = NewTimelineProcessor(a.client, a.store, a.merger, a.crawler, a.logger, config.Interval)
		case TaskFollowUp:
			task = NewFollowUpProcessor(a.crawler, a.logger, config.Interval)
		default:
			return fmt.Errorf("unknown task type: %s", taskType)
		}

		if err := a.AddTask(taskType, task); err != nil {
			return err
		}
	}
	return nil
}
