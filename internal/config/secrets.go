package config

import (
	"encoding/json"
	"os"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// keyringService and keyringUser identify the single JSON blob all
	// secrets live under in the OS keyring.
	keyringService = "goose"
	keyringUser    = "secrets"

	// DisableKeyringEnv switches secret storage to a plain file.
	DisableKeyringEnv = "GOOSE_DISABLE_KEYRING"
)

// GetSecret resolves a secret: environment variable first, then the OS
// keyring (or the secrets file when the keyring is disabled).
func (s *Store) GetSecret(key string) (string, error) {
	if raw, ok := os.LookupEnv(envKey(key)); ok {
		return raw, nil
	}

	secrets, err := s.loadSecrets()
	if err != nil {
		return "", err
	}
	value, ok := secrets[key]
	if !ok {
		return "", notFound(key)
	}
	return value, nil
}

// SetSecret stores a secret in the keyring blob or the secrets file.
func (s *Store) SetSecret(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.loadSecrets()
	if err != nil && !IsNotFound(err) {
		return err
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	secrets[key] = value
	return s.saveSecrets(secrets)
}

// DeleteSecret removes a secret. Removing a missing key is not an error.
func (s *Store) DeleteSecret(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.loadSecrets()
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	delete(secrets, key)
	return s.saveSecrets(secrets)
}

func keyringDisabled() bool {
	return os.Getenv(DisableKeyringEnv) != ""
}

func (s *Store) loadSecrets() (map[string]string, error) {
	if keyringDisabled() {
		data, err := os.ReadFile(s.secretsPath)
		if err != nil {
			if os.IsNotExist(err) {
				return map[string]string{}, nil
			}
			return nil, &Error{Kind: ErrFile, Err: err}
		}
		var secrets map[string]string
		if err := yaml.Unmarshal(data, &secrets); err != nil {
			return nil, &Error{Kind: ErrDeserialize, Err: err}
		}
		if secrets == nil {
			secrets = map[string]string{}
		}
		return secrets, nil
	}

	blob, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if err == keyring.ErrNotFound {
			return map[string]string{}, nil
		}
		return nil, &Error{Kind: ErrKeyring, Err: err}
	}
	var secrets map[string]string
	if err := json.Unmarshal([]byte(blob), &secrets); err != nil {
		return nil, &Error{Kind: ErrDeserialize, Err: err}
	}
	return secrets, nil
}

func (s *Store) saveSecrets(secrets map[string]string) error {
	if keyringDisabled() {
		data, err := yaml.Marshal(secrets)
		if err != nil {
			return &Error{Kind: ErrDeserialize, Err: err}
		}
		tmp := s.secretsPath + ".tmp"
		if err := os.WriteFile(tmp, data, 0600); err != nil {
			return &Error{Kind: ErrFile, Err: err}
		}
		if err := os.Rename(tmp, s.secretsPath); err != nil {
			os.Remove(tmp)
			return &Error{Kind: ErrFile, Err: err}
		}
		return nil
	}

	blob, err := json.Marshal(secrets)
	if err != nil {
		return &Error{Kind: ErrDeserialize, Err: err}
	}
	if err := keyring.Set(keyringService, keyringUser, string(blob)); err != nil {
		return &Error{Kind: ErrKeyring, Err: err}
	}
	return nil
}
