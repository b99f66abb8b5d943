package workers

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"preventanyl/utils"
)

// WorkflowSweeper drops help workflows nobody has touched for a while.
type WorkflowSweeper interface {
	SweepIdle(maxIdle time.Duration) int
}

// DispatchPruner deletes help dispatch records older than a cutoff.
type DispatchPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type CleanupWorker struct {
	workflows  WorkflowSweeper
	dispatches DispatchPruner

	config CleanupWorkerConfig
	cron   *cron.Cron

	// Worker state
	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	tasks []CleanupTask

	stats      CleanupWorkerStats
	statsMutex sync.RWMutex
}

type CleanupWorkerConfig struct {
	WorkflowIdleTimeout   time.Duration `json:"workflowIdleTimeout"`
	DispatchRetentionDays int           `json:"dispatchRetentionDays"`

	// cron specs, seconds optional
	WorkflowSweepSchedule string `json:"workflowSweepSchedule"`
	DispatchPruneSchedule string `json:"dispatchPruneSchedule"`

	EnableWorkflowSweep bool `json:"enableWorkflowSweep"`
	EnableDispatchPrune bool `json:"enableDispatchPrune"`
}

func DefaultCleanupWorkerConfig() CleanupWorkerConfig {
	return CleanupWorkerConfig{
		WorkflowIdleTimeout:   30 * time.Minute,
		DispatchRetentionDays: 90,
		WorkflowSweepSchedule: "@every 5m",
		DispatchPruneSchedule: "0 30 3 * * *", // 03:30 daily
		EnableWorkflowSweep:   true,
		EnableDispatchPrune:   true,
	}
}

type CleanupTask struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	LastRun     time.Time `json:"lastRun"`
	Enabled     bool      `json:"enabled"`

	Function func(ctx context.Context) error `json:"-"`
}

type CleanupWorkerStats struct {
	TasksExecuted      int64            `json:"tasksExecuted"`
	TasksFailed        int64            `json:"tasksFailed"`
	WorkflowsSwept     int64            `json:"workflowsSwept"`
	DispatchesPruned   int64            `json:"dispatchesPruned"`
	LastCleanupAt      time.Time        `json:"lastCleanupAt"`
	TaskExecutionTimes map[string]int64 `json:"taskExecutionTimes"` // ms
	StartTime          time.Time        `json:"startTime"`
}

// NewCleanupWorker creates the worker. Either dependency may be nil, which
// disables its task.
func NewCleanupWorker(workflows WorkflowSweeper, dispatches DispatchPruner, config CleanupWorkerConfig) *CleanupWorker {
	ctx, cancel := context.WithCancel(context.Background())

	worker := &CleanupWorker{
		workflows:  workflows,
		dispatches: dispatches,
		config:     config,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		ctx:        ctx,
		cancel:     cancel,
		stats: CleanupWorkerStats{
			StartTime:          time.Now(),
			TaskExecutionTimes: make(map[string]int64),
		},
	}

	worker.initializeTasks()
	return worker
}

func (cw *CleanupWorker) initializeTasks() {
	cw.tasks = []CleanupTask{
		{
			Name:        "help_workflow_sweep",
			Description: "Drop idle help workflows of disconnected devices",
			Schedule:    cw.config.WorkflowSweepSchedule,
			Enabled:     cw.config.EnableWorkflowSweep && cw.workflows != nil,
			Function:    cw.sweepWorkflows,
		},
		{
			Name:        "dispatch_history_prune",
			Description: "Delete help dispatch records past retention",
			Schedule:    cw.config.DispatchPruneSchedule,
			Enabled:     cw.config.EnableDispatchPrune && cw.dispatches != nil && cw.config.DispatchRetentionDays > 0,
			Function:    cw.pruneDispatches,
		},
	}
}

func (cw *CleanupWorker) Start() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if cw.isRunning {
		return nil
	}

	logrus.Info("Starting Cleanup Worker...")

	scheduled := 0
	for i := range cw.tasks {
		task := &cw.tasks[i]
		if !task.Enabled {
			continue
		}
		name := task.Name
		_, err := cw.cron.AddFunc(task.Schedule, func() {
			_ = cw.runTask(name)
		})
		if err != nil {
			return utils.NewBadRequestError("invalid schedule for " + name + ": " + err.Error())
		}
		scheduled++
	}

	cw.cron.Start()
	cw.isRunning = true

	logrus.Infof("Cleanup Worker started with %d tasks", scheduled)
	return nil
}

func (cw *CleanupWorker) Stop() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if !cw.isRunning {
		return nil
	}

	logrus.Info("Stopping Cleanup Worker...")

	cw.cancel()
	<-cw.cron.Stop().Done()
	cw.isRunning = false

	logrus.Info("Cleanup Worker stopped successfully")
	return nil
}

// RunTask executes one task immediately, outside its schedule.
func (cw *CleanupWorker) RunTask(name string) error {
	for i := range cw.tasks {
		if cw.tasks[i].Name == name {
			return cw.runTask(name)
		}
	}
	return utils.NewNotFoundError("Cleanup task")
}

func (cw *CleanupWorker) runTask(name string) error {
	cw.mutex.RLock()
	var task *CleanupTask
	for i := range cw.tasks {
		if cw.tasks[i].Name == name {
			task = &cw.tasks[i]
			break
		}
	}
	enabled := task != nil && task.Enabled
	cw.mutex.RUnlock()

	if !enabled {
		return nil
	}

	logrus.Debugf("Executing cleanup task: %s", name)

	startTime := time.Now()
	err := task.Function(cw.ctx)
	executionTime := time.Since(startTime)

	cw.statsMutex.Lock()
	cw.stats.TaskExecutionTimes[name] = executionTime.Milliseconds()
	if err != nil {
		cw.stats.TasksFailed++
		logrus.Errorf("Cleanup task %s failed: %v", name, err)
	} else {
		cw.stats.TasksExecuted++
		logrus.Debugf("Cleanup task %s completed in %v", name, executionTime)
	}
	cw.statsMutex.Unlock()

	cw.mutex.Lock()
	task.LastRun = startTime
	cw.mutex.Unlock()

	return err
}

func (cw *CleanupWorker) sweepWorkflows(_ context.Context) error {
	swept := cw.workflows.SweepIdle(cw.config.WorkflowIdleTimeout)

	cw.statsMutex.Lock()
	cw.stats.WorkflowsSwept += int64(swept)
	cw.stats.LastCleanupAt = time.Now()
	cw.statsMutex.Unlock()

	if swept > 0 {
		logrus.Infof("Swept %d idle help workflows", swept)
	}
	return nil
}

func (cw *CleanupWorker) pruneDispatches(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -cw.config.DispatchRetentionDays)

	deleted, err := cw.dispatches.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	cw.statsMutex.Lock()
	cw.stats.DispatchesPruned += deleted
	cw.stats.LastCleanupAt = time.Now()
	cw.statsMutex.Unlock()

	logrus.Infof("Cleaned up %d old help dispatch records", deleted)
	return nil
}

func (cw *CleanupWorker) GetStats() CleanupWorkerStats {
	cw.statsMutex.RLock()
	defer cw.statsMutex.RUnlock()

	stats := cw.stats
	stats.TaskExecutionTimes = make(map[string]int64, len(cw.stats.TaskExecutionTimes))
	for k, v := range cw.stats.TaskExecutionTimes {
		stats.TaskExecutionTimes[k] = v
	}
	return stats
}

func (cw *CleanupWorker) GetTasks() []CleanupTask {
	cw.mutex.RLock()
	defer cw.mutex.RUnlock()

	tasks := make([]CleanupTask, len(cw.tasks))
	copy(tasks, cw.tasks)
	return tasks
}

// StartCleanupWorker creates and starts the worker.
func StartCleanupWorker(workflows WorkflowSweeper, dispatches DispatchPruner, config CleanupWorkerConfig) (*CleanupWorker, error) {
	worker := NewCleanupWorker(workflows, dispatches, config)
	if err := worker.Start(); err != nil {
		return nil, err
	}
	return worker, nil
}
