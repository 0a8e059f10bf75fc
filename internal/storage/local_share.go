package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/vultisig/xmr-bridge/common"
	"github.com/vultisig/xmr-bridge/internal/tss"
)

const (
	keysDir            = "keys"
	bridgeKeysFileName = "combined_bridge_keys.json"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrEpochExists = errors.New("bridge keys epoch already written")
	ErrPassphrase  = errors.New("share file is sealed and no passphrase was given")
)

var (
	shareFilePattern = regexp.MustCompile(`^keys_(\d+)_(\d+)\.json$`)
	epochFilePattern = regexp.MustCompile(`^combined_bridge_keys\.(\d+)\.json$`)
)

// LocalShareStorage keeps share files and bridge-keys summaries under one directory:
//
//	<base>/keys/keys_<validator>_<party>.json
//	<base>/combined_bridge_keys.json
//	<base>/combined_bridge_keys.<epoch>.json
type LocalShareStorage struct {
	baseDir    string
	passphrase string
}

// NewLocalShareStorage creates the base directory if needed. When passphrase is set,
// share files are sealed with it.
func NewLocalShareStorage(baseDir, passphrase string) (*LocalShareStorage, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, keysDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	return &LocalShareStorage{
		baseDir:    baseDir,
		passphrase: passphrase,
	}, nil
}

func ShareFileName(validatorIndex int) string {
	return fmt.Sprintf("keys_%d_%d.json", validatorIndex, validatorIndex+1)
}

func (s *LocalShareStorage) sharePath(validatorIndex int) string {
	return filepath.Join(s.baseDir, keysDir, ShareFileName(validatorIndex))
}

// SaveShare writes the share file of one validator.
func (s *LocalShareStorage) SaveShare(share *tss.KeyShare) (string, error) {
	content, err := json.MarshalIndent(share, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode share: %w", err)
	}
	if s.passphrase != "" {
		content, err = common.SealWithPassphrase(s.passphrase, content)
		if err != nil {
			return "", fmt.Errorf("failed to seal share: %w", err)
		}
	}

	path := s.sharePath(share.ValidatorIndex)
	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// LoadShare reads the share file of one validator.
func (s *LocalShareStorage) LoadShare(validatorIndex int) (*tss.KeyShare, error) {
	return s.loadShareFile(s.sharePath(validatorIndex))
}

func (s *LocalShareStorage) loadShareFile(path string) (*tss.KeyShare, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if common.IsSealed(content) {
		if s.passphrase == "" {
			return nil, fmt.Errorf("%s: %w", path, ErrPassphrase)
		}
		content, err = common.OpenWithPassphrase(s.passphrase, content)
		if err != nil {
			return nil, fmt.Errorf("failed to open share %s: %w", path, err)
		}
	}

	var share tss.KeyShare
	if err := json.Unmarshal(content, &share); err != nil {
		return nil, fmt.Errorf("failed to decode share %s: %w", path, err)
	}
	return &share, nil
}

// ListShares loads every share file, ordered by validator index.
func (s *LocalShareStorage) ListShares() ([]tss.KeyShare, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, keysDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}

	var shares []tss.KeyShare
	for _, entry := range entries {
		if entry.IsDir() || !shareFilePattern.MatchString(entry.Name()) {
			continue
		}
		share, err := s.loadShareFile(filepath.Join(s.baseDir, keysDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		shares = append(shares, *share)
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].ValidatorIndex < shares[j].ValidatorIndex })
	return shares, nil
}

// SaveBridgeKeys writes the epoch file and points the combined file at it.
// An epoch is written at most once.
func (s *LocalShareStorage) SaveBridgeKeys(keys *tss.BridgeKeys) (string, error) {
	content, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode bridge keys: %w", err)
	}

	epochPath := filepath.Join(s.baseDir, EpochFileName(keys.Epoch))
	exists, err := s.exists(epochPath)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("epoch %d: %w", keys.Epoch, ErrEpochExists)
	}

	if err := writeFile(epochPath, content); err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, bridgeKeysFileName)
	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

func EpochFileName(epoch uint64) string {
	return fmt.Sprintf("combined_bridge_keys.%d.json", epoch)
}

// LoadBridgeKeys reads the current combined bridge keys.
func (s *LocalShareStorage) LoadBridgeKeys() (*tss.BridgeKeys, error) {
	return loadBridgeKeysFile(filepath.Join(s.baseDir, bridgeKeysFileName))
}

// LoadBridgeKeysEpoch reads the bridge keys of a specific epoch.
func (s *LocalShareStorage) LoadBridgeKeysEpoch(epoch uint64) (*tss.BridgeKeys, error) {
	return loadBridgeKeysFile(filepath.Join(s.baseDir, EpochFileName(epoch)))
}

// LatestEpoch returns the highest epoch written, or 0 if none.
func (s *LocalShareStorage) LatestEpoch() (uint64, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list bridge keys: %w", err)
	}
	var latest uint64
	for _, entry := range entries {
		m := epochFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		epoch, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		if epoch > latest {
			latest = epoch
		}
	}
	return latest, nil
}

func loadBridgeKeysFile(path string) (*tss.BridgeKeys, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var keys tss.BridgeKeys
	if err := json.Unmarshal(content, &keys); err != nil {
		return nil, fmt.Errorf("failed to decode bridge keys %s: %w", path, err)
	}
	return &keys, nil
}

func (s *LocalShareStorage) exists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file: %w", err)
	}
	return true, nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}
