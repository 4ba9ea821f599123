package events

import (
	"snscraper/pkg/logger"
)

// LogSink writes every event to the structured log
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a sink backed by the given logger
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.GetLogger()
	}
	return &LogSink{logger: log}
}

func (s *LogSink) Progress(e ProgressEvent) {
	s.logger.InfoWithFields("crawl progress", map[string]interface{}{
		"task_id":     e.TaskID,
		"status":      e.Status,
		"range_start": e.RangeStart,
		"range_end":   e.RangeEnd,
		"page":        e.CurrentPage,
		"count":       e.CumulativeCount,
	})
}

func (s *LogSink) Completed(e CompletedEvent) {
	s.logger.InfoWithFields("crawl completed", map[string]interface{}{
		"task_id":      e.TaskID,
		"final_status": e.FinalStatus,
		"total_count":  e.TotalCount,
		"duration":     e.Duration,
	})
}

func (s *LogSink) Error(e ErrorEvent) {
	s.logger.ErrorWithFields("crawl error", map[string]interface{}{
		"task_id": e.TaskID,
		"code":    string(e.Code),
		"message": e.Message,
	})
}

func (s *LogSink) LoginOutcome(e LoginOutcomeEvent) {
	fields := map[string]interface{}{
		"session_id": e.SessionID,
		"outcome":    string(e.Outcome),
	}
	if e.Identity != "" {
		fields["identity"] = e.Identity
	}
	if e.Message != "" {
		fields["message"] = e.Message
	}
	s.logger.InfoWithFields("login outcome", fields)
}
