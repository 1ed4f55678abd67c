// Package scheduler drives the periodic sync passes from cron
// expressions and guards the local cache with a single-process lease.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"framesync/pkg/logger"
	"framesync/pkg/timeutil"
)

// Job is one scheduled sync pass.
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

type managedJob struct {
	job     Job
	running bool
	mutex   sync.Mutex
}

// Manager owns one schedule loop per job.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   []*managedJob
	wg     sync.WaitGroup
}

// Start launches a schedule loop per job and returns the manager. Jobs
// whose previous run is still in flight are skipped, not queued.
func Start(ctx context.Context, jobs ...Job) *Manager {
	ctx2, cancel := context.WithCancel(ctx)
	m := &Manager{ctx: ctx2, cancel: cancel}
	for _, j := range jobs {
		mj := &managedJob{job: j}
		m.jobs = append(m.jobs, mj)
		logger.Info("sync_job_scheduled", "job", j.Name, "cron", j.Cron)
		m.wg.Add(1)
		go m.scheduleLoop(mj)
	}
	return m
}

// RunImmediate runs every job once, in order, outside the cron schedule.
func (m *Manager) RunImmediate() {
	for _, mj := range m.jobs {
		m.runJob(mj)
	}
}

// Stop cancels the schedule loops and waits for in-flight runs.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) scheduleLoop(mj *managedJob) {
	defer m.wg.Done()
	for {
		now := timeutil.Now()
		next, err := gronx.NextTickAfter(mj.job.Cron, now, false)
		if err != nil {
			logger.Error("sync_job_nexttick_failed", "job", mj.job.Name, "cron", mj.job.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-m.ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			m.runJob(mj)
			select {
			case <-time.After(time.Second):
			case <-m.ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			m.runJob(mj)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) runJob(mj *managedJob) {
	mj.mutex.Lock()
	if mj.running {
		mj.mutex.Unlock()
		logger.Warn("sync_job_still_running", "job", mj.job.Name)
		return
	}
	mj.running = true
	mj.mutex.Unlock()

	defer func() {
		mj.mutex.Lock()
		mj.running = false
		mj.mutex.Unlock()
	}()

	started := timeutil.Now()
	logger.Info("sync_job_start", "job", mj.job.Name)
	if err := mj.job.Run(m.ctx); err != nil {
		logger.Error("sync_job_failed", "job", mj.job.Name, "error", err.Error(), "elapsed", time.Since(started).String())
		return
	}
	logger.Info("sync_job_complete", "job", mj.job.Name, "elapsed", time.Since(started).String())
}
