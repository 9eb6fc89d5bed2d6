package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/buntdb"
)

const (
	keyUserID      = "session:user_id"
	keyAccessToken = "session:access_token"
	keyProfile     = "session:profile"
	cookiePrefix   = "cookies:"
)

// BuntPersister keeps the session in a buntdb file.
type BuntPersister struct {
	db *buntdb.DB
}

// OpenBunt opens (or creates) the database at path. ":memory:" gives an
// in-memory database.
func OpenBunt(path string) (*BuntPersister, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating state dir: %w", err)
		}
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	return &BuntPersister{db: db}, nil
}

// Close flushes and closes the database.
func (p *BuntPersister) Close() error {
	return p.db.Close()
}

func (p *BuntPersister) LoadSession() (Session, error) {
	var s Session
	err := p.db.View(func(tx *buntdb.Tx) error {
		var err error
		if s.UserID, err = getOptional(tx, keyUserID); err != nil {
			return err
		}
		if s.AccessToken, err = getOptional(tx, keyAccessToken); err != nil {
			return err
		}
		raw, err := getOptional(tx, keyProfile)
		if err != nil {
			return err
		}
		if raw != "" {
			var u UserInfo
			if err := json.Unmarshal([]byte(raw), &u); err != nil {
				return fmt.Errorf("parsing stored profile: %w", err)
			}
			s.Profile = &u
		}
		return nil
	})
	return s, err
}

func (p *BuntPersister) SaveSession(s Session) error {
	var profile []byte
	if s.Profile != nil {
		var err error
		if profile, err = json.Marshal(s.Profile); err != nil {
			return fmt.Errorf("marshaling profile: %w", err)
		}
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(keyUserID, s.UserID, nil); err != nil {
			return err
		}
		if _, _, err := tx.Set(keyAccessToken, s.AccessToken, nil); err != nil {
			return err
		}
		if profile == nil {
			return deleteOptional(tx, keyProfile)
		}
		_, _, err := tx.Set(keyProfile, string(profile), nil)
		return err
	})
}

func (p *BuntPersister) ClearSession() error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, k := range []string{keyUserID, keyAccessToken, keyProfile} {
			if err := deleteOptional(tx, k); err != nil {
				return err
			}
		}
		var cookieKeys []string
		err := tx.AscendKeys(cookiePrefix+"*", func(k, _ string) bool {
			cookieKeys = append(cookieKeys, k)
			return true
		})
		if err != nil {
			return err
		}
		for _, k := range cookieKeys {
			if err := deleteOptional(tx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntPersister) loadCookies(host string) (string, error) {
	var raw string
	err := p.db.View(func(tx *buntdb.Tx) error {
		var err error
		raw, err = getOptional(tx, cookiePrefix+host)
		return err
	})
	return raw, err
}

func (p *BuntPersister) saveCookies(host, raw string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(cookiePrefix+host, raw, nil)
		return err
	})
}

func getOptional(tx *buntdb.Tx, key string) (string, error) {
	v, err := tx.Get(key)
	if errors.Is(err, buntdb.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func deleteOptional(tx *buntdb.Tx, key string) error {
	_, err := tx.Delete(key)
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}
