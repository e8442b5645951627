// Package log is a zerolog-based logger that can write JSON events to an
// SQLite database, so a running daemon's history stays queryable from the
// `netctrl logs` subcommand.
package log

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"netctrl-go/pkg/appdir"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var (
	writesSinceStart       atomic.Int64
	pkgLogger              = zerolog.Nop()
	dbWriterInstance       *sqliteWriter
	dbHandle               *sql.DB
	mu                     sync.RWMutex // protects dbHandle and pkgLogger across Init/Close
	zerologTimeFieldFormat = time.RFC3339Nano

	ErrNotInitialized = errors.New("log: logger not initialized, call log.Init() first")
)

type sqliteWriter struct {
	db   *sql.DB
	stmt *sql.Stmt
	mu   sync.Mutex
}

func newSQLiteWriter(dbPath string) (*sqliteWriter, *sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode=wal&_pragma=busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite db %s: %w", dbPath, err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping sqlite db %s: %w", dbPath, err)
	}

	createTableSQL := `
    CREATE TABLE IF NOT EXISTS logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        inserted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
        log_data TEXT NOT NULL
    );`
	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create logs table: %w", err)
	}

	createIndexSQL := `CREATE INDEX IF NOT EXISTS idx_logs_json_time ON logs (json_extract(log_data, '$.time'));`
	if _, err = db.Exec(createIndexSQL); err != nil {
		stdlog.Printf("Warning: Failed to create JSON time index: %v\n", err)
	}

	stmt, err := db.Prepare(`INSERT INTO logs (log_data) VALUES (?)`)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return &sqliteWriter{db: db, stmt: stmt}, db, nil
}

func (w *sqliteWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err = w.stmt.Exec(string(p)); err != nil {
		stdlog.Printf("ERROR writing log to SQLite: %v\n", err)
		return 0, err
	}
	writesSinceStart.Add(1)
	return len(p), nil
}

func (w *sqliteWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil {
			firstErr = fmt.Errorf("error closing statement: %w", err)
		}
		w.stmt = nil
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("error closing db: %w", err)
			} else {
				firstErr = fmt.Errorf("%v; error closing db: %w", firstErr, err)
			}
		}
		w.db = nil
	}
	return firstErr
}

// SetStd echoes log events to a console writer on stdout. When the SQLite
// writer is active the events go to both sinks, so the `logs` subcommand and
// the management `logs` command still see everything an interactive run
// printed. Before Init it is console only.
func SetStd() {
	mu.Lock()
	defer mu.Unlock()

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	var w io.Writer = console
	if dbWriterInstance != nil {
		w = zerolog.MultiLevelWriter(console, dbWriterInstance)
	}
	pkgLogger = zerolog.New(w).With().Timestamp().Logger()
}

// Init opens (or creates) the SQLite log database under the app dir and
// routes all subsequent package-level log calls to it.
func Init(dbFile string) error {
	if dbFile == "" {
		return fmt.Errorf("logger needs an explicit dbFile")
	}

	dbPath := appdir.File(dbFile)

	mu.Lock()
	defer mu.Unlock()

	if dbWriterInstance != nil {
		return fmt.Errorf("logger already initialized")
	}

	writer, db, err := newSQLiteWriter(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite writer: %w", err)
	}

	dbWriterInstance = writer
	dbHandle = db

	zerolog.TimeFieldFormat = zerologTimeFieldFormat
	pkgLogger = zerolog.New(dbWriterInstance).With().
		Timestamp().
		Logger()

	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if dbWriterInstance == nil {
		return nil
	}

	dbHandle = nil
	dbWriter := dbWriterInstance
	dbWriterInstance = nil
	pkgLogger = zerolog.Nop()

	// Log shutdown using the writer before closing it.
	writerLogger := zerolog.New(dbWriter).With().Timestamp().Logger()
	writerLogger.Log().Msg("Closing SQLite logger")

	if err := dbWriter.close(); err != nil {
		stdlog.Printf("Error closing SQLite logger: %v\n", err)
		return fmt.Errorf("error closing SQLite logger: %w", err)
	}
	return nil
}

func Debug() *zerolog.Event { return pkgLogger.Debug() }
func Info() *zerolog.Event  { return pkgLogger.Info() }
func Warn() *zerolog.Event  { return pkgLogger.Warn() }
func Error() *zerolog.Event { return pkgLogger.Error() }
func Fatal() *zerolog.Event { return pkgLogger.Fatal() }

// Print sends a log event at info level with no extra field.
// Arguments are handled in the manner of fmt.Print.
func Print(v ...interface{}) {
	pkgLogger.Info().CallerSkipFrame(1).Msg(fmt.Sprint(v...))
}

// Printf sends a log event at info level with no extra field.
// Arguments are handled in the manner of fmt.Printf.
func Printf(format string, v ...interface{}) {
	pkgLogger.Info().CallerSkipFrame(1).Msgf(format, v...)
}

func Fatalf(format string, v ...any) {
	pkgLogger.Fatal().Msgf(format, v...)
}

// --- Log retrieval ---

type LogEntry struct {
	ID         int64
	InsertedAt time.Time
	LogData    string // the raw JSON string
}

const DefaultLimit = 100

func getHandle() (*sql.DB, error) {
	mu.RLock()
	defer mu.RUnlock()
	if dbHandle == nil {
		return nil, ErrNotInitialized
	}
	return dbHandle, nil
}

// parseDBTimestamp tries common SQLite timestamp formats.
func parseDBTimestamp(ts string) time.Time {
	formats := []string{
		"2006-01-02 15:04:05", // SQLite default without timezone
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999",
		time.DateTime,
	}
	for _, format := range formats {
		t, err := time.Parse(format, ts)
		if err == nil {
			return t
		}
	}
	stdlog.Printf("Warning: Could not parse inserted_at timestamp '%s' with known formats", ts)
	return time.Time{}
}

// GetLogsSinceStart uses the write counter to retrieve the logs written by
// the current run.
func GetLogsSinceStart() ([]LogEntry, error) {
	n := writesSinceStart.Load()
	return GetLastNLogs(int(n))
}

// GetLastNLogs retrieves the most recent 'n' log entries, in chronological
// order (oldest of the 'n' first). Returns ErrNotInitialized if log.Init()
// has not been called.
func GetLastNLogs(n int) ([]LogEntry, error) {
	handle, err := getHandle()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []LogEntry{}, nil
	}

	rows, err := handle.Query(`SELECT id, inserted_at, log_data FROM logs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query last %d logs: %w", n, err)
	}
	defer rows.Close()

	logs, err := scanLogRows(rows)
	if err != nil {
		return nil, err
	}

	// Reverse the slice
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}

	return logs, nil
}

// GetLogsBetween retrieves log entries whose event time (JSON 'time' field)
// falls within [start, end], in chronological order. A limit <= 0 means
// DefaultLimit.
func GetLogsBetween(start, end time.Time, limit int) ([]LogEntry, error) {
	handle, err := getHandle()
	if err != nil {
		return nil, err
	}

	effectiveLimit := limit
	if effectiveLimit <= 0 {
		effectiveLimit = DefaultLimit
	}

	startTimeStr := start.Format(zerologTimeFieldFormat)
	endTimeStr := end.Format(zerologTimeFieldFormat)

	query := `
        SELECT id, inserted_at, log_data
        FROM logs
        WHERE json_extract(log_data, '$.time') >= ? AND json_extract(log_data, '$.time') <= ?
        ORDER BY json_extract(log_data, '$.time') ASC, id ASC
        LIMIT ?`

	rows, err := handle.Query(query, startTimeStr, endTimeStr, effectiveLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs between %s and %s: %w", startTimeStr, endTimeStr, err)
	}
	defer rows.Close()

	return scanLogRows(rows)
}

// GetLogsSince is a convenience wrapper around GetLogsBetween up to now.
func GetLogsSince(start time.Time, limit int) ([]LogEntry, error) {
	return GetLogsBetween(start, time.Now(), limit)
}

func scanLogRows(rows *sql.Rows) ([]LogEntry, error) {
	var logs []LogEntry
	for rows.Next() {
		var entry LogEntry
		var insertedAtStr string
		if err := rows.Scan(&entry.ID, &insertedAtStr, &entry.LogData); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entry.InsertedAt = parseDBTimestamp(insertedAtStr)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log rows: %w", err)
	}
	return logs, nil
}
