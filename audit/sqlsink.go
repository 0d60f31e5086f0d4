package audit

import (
	"encoding/json"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"github.com/h3tag-core/consensus/consensuserrors"
)

// eventRecord is the gorm-mapped row a SQLSink persists. DetailsJSON holds
// Event.Details serialised, since GORM has no native map column type.
type eventRecord struct {
	ID        uint64 `gorm:"primary_key"`
	Type      string `gorm:"index"`
	Severity  string `gorm:"index"`
	Source    string
	DetailsJSON string
	Timestamp time.Time `gorm:"index"`
}

func (eventRecord) TableName() string { return "audit_events" }

// SQLSink persists every event to a relational table via GORM, the ORM
// the teacher's kasparov indexer uses for its own persistence layer. This
// is a worked external-collaborator example, not the canonical audit
// store (spec treats the audit sink as pluggable).
type SQLSink struct {
	db *gorm.DB
}

// OpenSQLSink opens (and auto-migrates) a SQLSink backed by the given
// GORM dialect and connection string, e.g. OpenSQLSink("sqlite3", "audit.db").
func OpenSQLSink(dialect, dsn string) (*SQLSink, error) {
	db, err := gorm.Open(dialect, dsn)
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	db.AutoMigrate(&eventRecord{})
	return &SQLSink{db: db}, nil
}

// LogEvent implements Sink.
func (s *SQLSink) LogEvent(e Event) {
	details, _ := json.Marshal(e.Details)
	rec := &eventRecord{
		Type:        e.Type,
		Severity:    string(e.Severity),
		Source:      e.Source,
		DetailsJSON: string(details),
		Timestamp:   e.Timestamp,
	}
	s.db.Create(rec)
}

// Close releases the underlying database handle.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
