package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileStore keeps Data in a YAML document. Every commit replaces the file
// atomically, so a power cut leaves either the old or the new record.
type FileStore struct {
	path string
	log  *logrus.Entry

	mu      sync.Mutex
	data    Data
	commits int
}

// Open loads the record at path. A missing file is not an error: the store
// starts from zero data and the file is created on the first change.
func Open(path string, logger *logrus.Entry) (*FileStore, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &FileStore{
		path: path,
		log:  logger.WithField("component", "app/storage"),
	}
	s.log.Info("initialization started")

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.log.Info("counter value not found")
		s.log.Info("temporary access point ssid value not found")
	case err != nil:
		return nil, errors.Wrapf(err, "read %s", path)
	default:
		if err := yaml.Unmarshal(raw, &s.data); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		s.data.TemporaryAPSSID = truncateSSID(s.data.TemporaryAPSSID)
	}

	s.log.Infof("initialization finished: counter=%d", s.data.Counter)
	return s, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Get returns the last committed record.
func (s *FileStore) Get() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Set writes d if any field differs from the committed record. The SSID is
// truncated to MaxSSIDLength first. On error the committed record is kept.
func (s *FileStore) Set(d Data) error {
	d.TemporaryAPSSID = truncateSSID(d.TemporaryAPSSID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if d == s.data {
		return nil
	}
	if err := s.commit(d); err != nil {
		return err
	}
	logUpdated(s.log, s.data, d)
	s.data = d
	s.commits++
	s.log.Debug("commit success")
	return nil
}

// Commits returns how many Set calls wrote the file.
func (s *FileStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *FileStore) commit(d Data) error {
	raw, err := yaml.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "rename to %s", s.path)
	}
	return nil
}
