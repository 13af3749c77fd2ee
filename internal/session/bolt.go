package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docchat/internal/models"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

var bucketHistory = []byte("history")

// BoltStore persists histories in a bbolt file, one JSON list per session.
type BoltStore struct {
	db    *bbolt.DB
	limit int
}

func NewBoltStore(path string, limit int) (*BoltStore, error) {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("opened session store")
	return &BoltStore{db: db, limit: limit}, nil
}

func (s *BoltStore) Append(_ context.Context, sessionID string, exchange models.ChatExchange) (int, error) {
	var n int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		history, err := decode(b.Get([]byte(sessionID)))
		if err != nil {
			return err
		}
		history = trim(append(history, exchange), s.limit)
		n = len(history)

		data, err := json.Marshal(history)
		if err != nil {
			return err
		}
		return b.Put([]byte(sessionID), data)
	})
	if err != nil {
		return 0, fmt.Errorf("append history %s: %w", sessionID, err)
	}
	return n, nil
}

func (s *BoltStore) History(_ context.Context, sessionID string) ([]models.ChatExchange, error) {
	var history []models.ChatExchange
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		history, err = decode(tx.Bucket(bucketHistory).Get([]byte(sessionID)))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", sessionID, err)
	}
	return history, nil
}

func (s *BoltStore) Clear(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHistory).Delete([]byte(sessionID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func decode(data []byte) ([]models.ChatExchange, error) {
	if data == nil {
		return nil, nil
	}
	var history []models.ChatExchange
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
