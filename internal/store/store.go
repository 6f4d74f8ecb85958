package store

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/apibillme/cache"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type Store struct {
	db        *sql.DB
	log       *zap.Logger
	userCache cache.Cache
}

const downloadTable string = `
  CREATE TABLE IF NOT EXISTS downloads (
      id INTEGER PRIMARY KEY AUTOINCREMENT,
      image_id TEXT NOT NULL,
      provider TEXT NOT NULL,
      size TEXT NOT NULL,
      path TEXT NOT NULL,
      source_url TEXT NOT NULL,
      created INT NOT NULL
  )
`

const userTable string = `
  CREATE TABLE IF NOT EXISTS users (
      user TEXT NOT NULL UNIQUE,
      hash TEXT NOT NULL,
      level INT NOT NULL
  )
`

// Download is one row of the download ledger.
type Download struct {
	ID        int64     `json:"id"`
	ImageID   string    `json:"imageId"`
	Provider  string    `json:"provider"`
	Size      string    `json:"size"`
	Path      string    `json:"path"`
	SourceURL string    `json:"sourceUrl"`
	Created   time.Time `json:"created"`
}

// Remote reports whether the download went to object storage rather than
// the workspace.
func (d Download) Remote() bool {
	return strings.Contains(d.Path, "://")
}

// NewStore opens (creating if needed) the sqlite database at filename.
func NewStore(filename string, log *zap.Logger) (*Store, error) {
	logger := log.Named("store")

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+filename)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, table := range []string{downloadTable, userTable} {
		if _, err := db.Exec(table); err != nil {
			db.Close()
			return nil, fmt.Errorf("create table: %w", err)
		}
	}

	userCache := cache.New(256, cache.WithTTL(1*time.Hour))

	return &Store{
		db:        db,
		log:       logger,
		userCache: userCache,
	}, nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

func (store *Store) RecordDownload(ctx context.Context, d Download) (int64, error) {
	if d.Created.IsZero() {
		d.Created = time.Now()
	}
	res, err := store.db.ExecContext(ctx,
		"INSERT INTO downloads (image_id, provider, size, path, source_url, created) VALUES (?,?,?,?,?,?)",
		d.ImageID,
		d.Provider,
		d.Size,
		d.Path,
		d.SourceURL,
		d.Created.Unix(),
	)
	if err != nil {
		store.log.Error("Failed to record download", zap.String("image", d.ImageID), zap.Error(err))
		return 0, fmt.Errorf("record download: %w", err)
	}
	return res.LastInsertId()
}

// Downloads lists the ledger, newest first. limit <= 0 means all rows.
func (store *Store) Downloads(ctx context.Context, limit int) ([]Download, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := store.db.QueryContext(ctx,
		"SELECT id, image_id, provider, size, path, source_url, created FROM downloads ORDER BY created DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		var d Download
		var created int64
		if err := rows.Scan(&d.ID, &d.ImageID, &d.Provider, &d.Size, &d.Path, &d.SourceURL, &created); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		d.Created = time.Unix(created, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (store *Store) DeleteDownload(ctx context.Context, id int64) error {
	_, err := store.db.ExecContext(ctx, "DELETE FROM downloads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete download: %w", err)
	}
	return nil
}

// PruneMissing drops ledger rows whose workspace file no longer exists
// under root. Remote rows are left alone. It returns how many were removed.
func (store *Store) PruneMissing(ctx context.Context, root string) (int, error) {
	all, err := store.Downloads(ctx, 0)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, d := range all {
		if d.Remote() {
			continue
		}
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(d.Path)))
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := store.DeleteDownload(ctx, d.ID); err != nil {
			return pruned, err
		}
		pruned++
	}
	if pruned > 0 {
		store.log.Info("Pruned download ledger", zap.Int("removed", pruned))
	}
	return pruned, nil
}

// AddUser creates or replaces a bridge user with an argon2id hash. A
// replaced password stops working immediately.
func (store *Store) AddUser(ctx context.Context, user string, pass string, level int) error {
	if user == "" || pass == "" {
		return errors.New("user and password are required")
	}
	hash, err := argon2id.CreateHash(pass, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = store.db.ExecContext(ctx,
		"INSERT INTO users (user, hash, level) VALUES (?,?,?) ON CONFLICT(user) DO UPDATE SET hash = excluded.hash, level = excluded.level",
		user,
		hash,
		level,
	)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	store.userCache.Del(user)
	return nil
}

// TestUser checks a password. Verified credentials are cached for an hour.
func (store *Store) TestUser(user string, pass string) bool {
	userPass, ok := store.userCache.Get(user)
	if ok && 1 == subtle.ConstantTimeCompare([]byte(userPass.(string)), []byte(pass)) {
		return true
	}
	row := store.db.QueryRow("SELECT hash FROM users WHERE user = ?", user)
	var hash string
	err := row.Scan(&hash)
	if err == nil {
		match, err := argon2id.ComparePasswordAndHash(pass, hash)
		if err != nil {
			store.log.Error("Error comparing password hashes", zap.Error(err))
			return false
		}
		if match {
			store.userCache.Set(user, pass)
			return true
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		store.log.Error("User lookup failed", zap.Error(err))
	}
	return false
}
