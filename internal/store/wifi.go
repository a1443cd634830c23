package store

import (
	"errors"
	"fmt"

	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/zalando/go-keyring"
)

// WiFi is the network the appliance joins on its next start.
// The password itself never leaves the OS keyring.
type WiFi struct {
	SSID        string `json:"ssid"`
	HasPassword bool   `json:"hasPassword"`
}

// WiFi returns the saved network. A missing keyring entry means no password.
func (s *Store) WiFi() (WiFi, error) {
	s.mu.RLock()
	ssid := s.doc.WiFi.SSID
	s.mu.RUnlock()

	if ssid == "" {
		return WiFi{}, nil
	}

	_, err := keyring.Get(config.KeyringService, ssid)
	switch {
	case err == nil:
		return WiFi{SSID: ssid, HasPassword: true}, nil
	case errors.Is(err, keyring.ErrNotFound):
		return WiFi{SSID: ssid}, nil
	default:
		return WiFi{SSID: ssid}, fmt.Errorf("%s: %w", config.ErrKeyringRead, err)
	}
}

// WiFiPassword returns the password saved for the current SSID, or "".
func (s *Store) WiFiPassword() (string, error) {
	s.mu.RLock()
	ssid := s.doc.WiFi.SSID
	s.mu.RUnlock()

	if ssid == "" {
		return "", nil
	}
	pwd, err := keyring.Get(config.KeyringService, ssid)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrKeyringRead, err)
	}
	return pwd, nil
}

// SaveWiFi stores the SSID in the document and the password in the keyring.
// An empty password keeps the one already saved for that SSID.
func (s *Store) SaveWiFi(ssid, password string) error {
	if password != "" {
		if err := keyring.Set(config.KeyringService, ssid, password); err != nil {
			return fmt.Errorf("%s: %w", config.ErrKeyringWrite, err)
		}
	}

	var previous string
	err := s.mutate(func(doc *document) error {
		previous = doc.WiFi.SSID
		doc.WiFi.SSID = ssid
		return nil
	})
	if err != nil {
		return err
	}

	if previous != "" && previous != ssid {
		_ = keyring.Delete(config.KeyringService, previous)
	}
	s.log.Info(config.MsgWiFiSaved, config.LogKeySSID, ssid)
	return nil
}

// migrateWiFiPassword moves a plain-text password found in the document into
// the keyring and rewrites the file without it. Called from Open only.
func (s *Store) migrateWiFiPassword() error {
	if s.doc.WiFi.Password == "" {
		return nil
	}
	if s.doc.WiFi.SSID != "" {
		if err := keyring.Set(config.KeyringService, s.doc.WiFi.SSID, s.doc.WiFi.Password); err != nil {
			return fmt.Errorf("%s: %w", config.ErrKeyringWrite, err)
		}
	}
	s.doc.WiFi.Password = ""
	return s.save(s.doc)
}
