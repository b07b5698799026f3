// Package archive keeps a write-behind SQLite transcript of chat traffic.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"chatrelay/pkg/types"
)

const (
	DefaultTranscriptLimit = 100
	MaxTranscriptLimit     = 1000
)

// Config holds archive settings
type Config struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	WriteBuffer     int
	WriteTimeout    time.Duration
	RetryDelay      time.Duration
}

// DefaultConfig returns settings suited to a single relay process
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		WriteBuffer:     100,
		WriteTimeout:    30 * time.Second,
		RetryDelay:      5 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Path == "" {
		return ErrEmptyPath
	}
	if c.MaxConnections <= 0 || c.WriteBuffer <= 0 {
		return fmt.Errorf("%w: connection and buffer sizes must be positive", ErrInvalidConfig)
	}
	if c.WriteTimeout <= 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

// Manager implements interfaces.Archiver on SQLite
type Manager struct {
	db           *sql.DB
	config       Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the archive, applies migrations and starts the writer
func NewManager(config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	// FUNCTIONAL DISCOVERY: Pragmas in the DSN apply to every pooled connection,
	// not just the one that happened to run a PRAGMA statement
	db, err := sql.Open("sqlite3", config.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, config.WriteBuffer),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			m.apply(op)
		case <-m.shutdown:
			// Queued writes were accepted, so finish them before exiting
			for {
				select {
				case op := <-m.writeChannel:
					m.apply(op)
				default:
					log.Println("Archive write loop shutting down")
					return
				}
			}
		}
	}
}

// apply runs one write, retrying once after RetryDelay
func (m *Manager) apply(op writeOperation) {
	err := op.operation(m.db)
	if err != nil {
		log.Printf("Archive write failed, retrying in %s: %v", m.config.RetryDelay, err)
		time.Sleep(m.config.RetryDelay)
		if err = op.operation(m.db); err != nil {
			log.Printf("Archive write failed after retry: %v", err)
		}
	}
	op.result <- err
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		m.mu.RUnlock()
	case <-timeout.C:
		m.mu.RUnlock()
		return ErrWriteTimeout
	case <-ctx.Done():
		m.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StoreMessage records a room or private message
func (m *Manager) StoreMessage(ctx context.Context, message *types.Message) error {
	if message == nil {
		return ErrNilRecord
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(context.Background(), `
			INSERT OR IGNORE INTO messages (id, room, sender, sender_id, receiver, text, attachment, is_private, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			message.ID,
			message.Room,
			message.Sender,
			message.SenderID,
			nullString(message.Receiver),
			message.Text,
			nullAttachment(message),
			message.IsPrivate,
			message.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// StoreReaction records a reaction toggle
func (m *Manager) StoreReaction(ctx context.Context, reaction *types.ReactionRecord) error {
	if reaction == nil {
		return ErrNilRecord
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(context.Background(), `
			INSERT INTO reactions (message_id, room, username, emoji_key, added, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			reaction.MessageID,
			reaction.Room,
			reaction.Username,
			reaction.EmojiKey,
			reaction.Added,
			reaction.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reaction: %w", err)
		}
		return nil
	})
}

// Transcript returns the most recent archived messages of a room, oldest first,
// with reactions rebuilt from the recorded toggles
func (m *Manager) Transcript(ctx context.Context, room string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	if limit > MaxTranscriptLimit {
		limit = MaxTranscriptLimit
	}

	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, room, sender, sender_id, text, attachment, timestamp FROM (
			SELECT rowid AS seq, id, room, sender, sender_id, text, attachment, timestamp
			FROM messages
			WHERE room = ? AND is_private = 0
			ORDER BY timestamp DESC, seq DESC
			LIMIT ?
		) ORDER BY timestamp ASC, seq ASC
	`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*types.Message, 0, limit)
	byID := make(map[string]*types.Message)
	for rows.Next() {
		var msg types.Message
		var attachment sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Sender, &msg.SenderID, &msg.Text, &attachment, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if attachment.Valid {
			msg.Attachment = []byte(attachment.String)
		}
		messages = append(messages, &msg)
		byID[msg.ID] = &msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	if len(messages) == 0 {
		return messages, nil
	}
	if err := m.replayReactions(ctx, room, byID); err != nil {
		return nil, err
	}
	return messages, nil
}

// replayReactions folds the toggle log into each message's reaction sets
func (m *Manager) replayReactions(ctx context.Context, room string, byID map[string]*types.Message) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT message_id, username, emoji_key, added
		FROM reactions
		WHERE room = ?
		ORDER BY id ASC
	`, room)
	if err != nil {
		return fmt.Errorf("failed to query reactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var messageID, username, emoji string
		var added bool
		if err := rows.Scan(&messageID, &username, &emoji, &added); err != nil {
			return fmt.Errorf("failed to scan reaction row: %w", err)
		}
		msg, ok := byID[messageID]
		if !ok {
			continue
		}
		if msg.Reactions == nil {
			msg.Reactions = make(map[string][]string)
		}
		msg.Reactions[emoji] = toggle(msg.Reactions[emoji], username, added)
		if len(msg.Reactions[emoji]) == 0 {
			delete(msg.Reactions, emoji)
		}
	}
	return rows.Err()
}

func toggle(users []string, username string, added bool) []string {
	for i, u := range users {
		if u == username {
			if added {
				return users
			}
			return append(users[:i], users[i+1:]...)
		}
	}
	if added {
		return append(users, username)
	}
	return users
}

// HealthCheck validates archive connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("archive ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return fmt.Errorf("archive read test failed: %w", err)
	}
	return nil
}

// Close drains queued writes and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullAttachment(message *types.Message) sql.NullString {
	if !types.HasAttachment(message.Attachment) {
		return sql.NullString{}
	}
	return sql.NullString{String: string(message.Attachment), Valid: true}
}
