package accesslog

import (
	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GormSink persists entries to oauth_access_logs. Write failures are logged
// and otherwise ignored.
type GormSink struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

func NewGormSink(db *gorm.DB, logger logrus.FieldLogger) *GormSink {
	return &GormSink{db: db, logger: logger}
}

func (s *GormSink) Record(entry Entry) {
	record := &models.AccessLog{
		Endpoint:   entry.Endpoint,
		Outcome:    entry.Outcome,
		DurationMs: entry.Duration.Milliseconds(),
		ClientID:   entry.ClientID,
		UserID:     entry.UserID,
		RemoteAddr: entry.RemoteAddr,
		CreatedAt:  entry.Time,
	}
	if err := s.db.Create(record).Error; err != nil {
		s.logger.WithError(err).Error("Failed to persist access log entry")
	}
}
