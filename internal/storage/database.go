package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for dbType (sqlite3 or mysql).
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// sqlite serialises writers anyway; a single connection also keeps
		// :memory: databases shared across queries
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS stories (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				background TEXT NOT NULL,
				character_num INTEGER NOT NULL DEFAULT 0,
				user_id TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS characters (
				id TEXT PRIMARY KEY,
				story_id TEXT NOT NULL,
				name TEXT NOT NULL,
				personality TEXT NOT NULL,
				background TEXT NOT NULL,
				position INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(story_id) REFERENCES stories(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_characters_story ON characters(story_id, position)`,
			`CREATE TABLE IF NOT EXISTS game_sessions (
				id TEXT PRIMARY KEY,
				story_id TEXT NOT NULL,
				player_character_id TEXT NOT NULL,
				user_id TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(story_id) REFERENCES stories(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS long_term_memories (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				session_id TEXT NOT NULL,
				character_id TEXT NOT NULL,
				content TEXT NOT NULL,
				category TEXT NOT NULL,
				importance INTEGER NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_ltm_owner ON long_term_memories(session_id, character_id)`,
			`CREATE TABLE IF NOT EXISTS short_term_memories (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				session_id TEXT NOT NULL,
				character_id TEXT NOT NULL,
				content TEXT NOT NULL,
				turn_number INTEGER NOT NULL,
				importance INTEGER NOT NULL,
				consolidated BOOLEAN NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stm_owner ON short_term_memories(session_id, character_id, turn_number)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS stories (
				id CHAR(36) NOT NULL,
				title VARCHAR(255) NOT NULL,
				background MEDIUMTEXT NOT NULL,
				character_num INT NOT NULL DEFAULT 0,
				user_id VARCHAR(64) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS characters (
				id CHAR(36) NOT NULL,
				story_id CHAR(36) NOT NULL,
				name VARCHAR(255) NOT NULL,
				personality TEXT NOT NULL,
				background MEDIUMTEXT NOT NULL,
				position INT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_characters_story (story_id, position),
				CONSTRAINT fk_characters_story FOREIGN KEY (story_id) REFERENCES stories(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS game_sessions (
				id CHAR(36) NOT NULL,
				story_id CHAR(36) NOT NULL,
				player_character_id CHAR(36) NOT NULL,
				user_id VARCHAR(64) NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_sessions_story (story_id),
				CONSTRAINT fk_sessions_story FOREIGN KEY (story_id) REFERENCES stories(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS long_term_memories (
				seq BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				id CHAR(36) NOT NULL,
				session_id CHAR(36) NOT NULL,
				character_id CHAR(36) NOT NULL,
				content TEXT NOT NULL,
				category VARCHAR(32) NOT NULL,
				importance INT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (seq),
				UNIQUE KEY uniq_ltm_id (id),
				INDEX idx_ltm_owner (session_id, character_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS short_term_memories (
				seq BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				id CHAR(36) NOT NULL,
				session_id CHAR(36) NOT NULL,
				character_id CHAR(36) NOT NULL,
				content TEXT NOT NULL,
				turn_number INT NOT NULL,
				importance INT NOT NULL,
				consolidated BOOLEAN NOT NULL DEFAULT FALSE,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (seq),
				UNIQUE KEY uniq_stm_id (id),
				INDEX idx_stm_owner (session_id, character_id, turn_number)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
