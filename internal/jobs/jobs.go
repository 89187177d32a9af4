package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

const sessionSweepJobID = "session-sweep"

// RegisterAll registers every background job with the manager.
func RegisterAll(jm *JobManager) {
	jm.Register(sessionSweepJobID, "Idle session sweep", runSessionSweep)
}

// StartScheduler starts the background job scheduler.
func StartScheduler(app JobContext) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startSessionSweepJob(s, app)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
}

func startSessionSweepJob(s *gocron.Scheduler, app JobContext) {
	interval := app.Config().Session.SweepIntervalMinutes
	if interval == 0 {
		log.Println("Session sweep interval is 0, scheduled sweep is disabled.")
		return
	}

	log.Printf("Scheduling job: '%s' to run every %d minutes.", sessionSweepJobID, interval)

	_, err := s.Every(interval).Minutes().Do(func() {
		log.Println("Scheduler is triggering job:", sessionSweepJobID)
		// Submit the job to the manager instead of running it directly.
		// This prevents conflicts with manually triggered jobs.
		err := app.JobManager().RunJob(sessionSweepJobID, app)
		if err != nil {
			log.Printf("Scheduled job '%s' could not start: %v", sessionSweepJobID, err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", sessionSweepJobID, err)
	}
}

// runSessionSweep ends reading sessions that have gone quiet. A session
// with no progress updates for the configured idle window is treated as
// abandoned: its summary is flushed the same way an app-background
// transition would have.
func runSessionSweep(ctx JobContext) {
	threshold := time.Duration(ctx.Config().Session.IdleMinutes) * time.Minute
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}

	ended := ctx.Readers().SweepIdle(threshold)
	log.Printf("Session sweep ended %d idle session(s)", ended)
	SendProgress(ctx.WsHub(), ProgressUpdate{
		JobID:   sessionSweepJobID,
		Message: fmt.Sprintf("Ended %d idle session(s).", ended),
		Done:    true,
	})
}
