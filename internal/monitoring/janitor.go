package monitoring

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// UploadJanitor periodically removes uploaded images that no history record
// references once they are older than the retention period.
type UploadJanitor struct {
	uploads   services.UploadServiceProvider
	history   services.HistoryServiceProvider
	eventSvc  services.EventServiceProvider
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
}

// NewUploadJanitor creates a janitor that runs on a standard cron expression.
func NewUploadJanitor(uploads services.UploadServiceProvider, history services.HistoryServiceProvider, eventSvc services.EventServiceProvider, retention time.Duration, schedule string) *UploadJanitor {
	return &UploadJanitor{
		uploads:   uploads,
		history:   history,
		eventSvc:  eventSvc,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
	}
}

// Start schedules the sweep. It fails on an invalid cron expression.
func (j *UploadJanitor) Start() error {
	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", j.schedule, err)
	}

	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(); err != nil {
			log.Error().Err(err).Msg("Janitor: upload sweep failed")
		}
	}); err != nil {
		return err
	}

	log.Info().Str("schedule", j.schedule).Dur("retention", j.retention).Msg("Starting upload janitor...")
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *UploadJanitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	log.Info().Msg("Stopping upload janitor.")
}

// Sweep deletes stale, unreferenced files and returns how many were removed.
func (j *UploadJanitor) Sweep() (int, error) {
	urls, err := j.history.ReferencedImageURLs()
	if err != nil {
		return 0, fmt.Errorf("could not load referenced images: %w", err)
	}
	referenced := make(map[string]bool, len(urls))
	for _, url := range urls {
		if name, err := services.FileNameFromURL(url); err == nil {
			referenced[name] = true
		}
	}

	dir := j.uploads.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("could not read upload directory: %w", err)
	}

	cutoff := j.now().Add(-j.retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || referenced[entry.Name()] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Janitor: could not remove upload")
			continue
		}
		removed++
	}

	if removed > 0 {
		msg := fmt.Sprintf("Removed %d unreferenced upload(s) older than %s.", removed, j.retention)
		j.eventSvc.CreateEvent("uploads.cleanup", "info", msg, nil)
		log.Info().Int("removed", removed).Msg("Janitor: upload sweep finished")
	}
	return removed, nil
}
