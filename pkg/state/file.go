package state

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	fhdeployerr "github.com/fluxcd/fhdeploy/pkg/errors"
)

const (
	DefaultDir  = "/var/lib/fhdeploy"
	DefaultName = "state.json"
)

// FileStore keeps the Record in a single JSON file. There is one
// FileStore per deployed reference; it is not shared.
type FileStore struct {
	path   string
	logger log.Logger

	// for simulating crashes in tests
	rename func(oldpath, newpath string) error
}

func NewFileStore(path string, logger log.Logger) *FileStore {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &FileStore{
		path:   path,
		logger: logger,
		rename: os.Rename,
	}
}

func (s *FileStore) String() string {
	return "file " + s.path
}

func (s *FileStore) Path() string {
	return s.path
}

// Read loads the record from disk. A missing file means no deployment
// has been attempted. A file that can't be read or decoded is treated
// the same way (and logged) rather than stopping deployments
// altogether.
func (s *FileStore) Read(ctx context.Context) Record {
	bytes, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Empty()
	}
	if err != nil {
		s.logger.Log("warning", "unable to read deployment record; treating as no prior record", "state", s.String(), "err", err)
		return Empty()
	}

	var r Record
	if err := json.Unmarshal(bytes, &r); err != nil {
		s.logger.Log("warning", "deployment record is corrupt; treating as no prior record", "state", s.String(), "err", err)
		return Empty()
	}
	outcome, err := ParseOutcome(string(r.Outcome))
	if err != nil {
		s.logger.Log("warning", "deployment record is corrupt; treating as no prior record", "state", s.String(), "err", err)
		return Empty()
	}
	r.Outcome = outcome
	if r.LastAttemptedVersion == "" {
		r.Outcome = OutcomeNone
	}
	return r
}

// Write replaces the record atomically: the new contents go to a
// temporary file in the same directory, which is synced and then
// renamed over the old file.
func (s *FileStore) Write(ctx context.Context, r Record) error {
	if err := s.write(r); err != nil {
		return &fhdeployerr.Error{
			Type: fhdeployerr.StateStore,
			Err:  err,
			Help: `Could not record the deployment outcome

The deployment record at

    ` + s.path + `

could not be written. The previous record is still in place, so the
next cycle may repeat the last deployment. Check that the directory
exists, is writable, and that the disk is not full.
`,
		}
	}
	return nil
}

func (s *FileStore) write(r Record) error {
	bytes, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding deployment record")
	}
	bytes = append(bytes, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating state directory")
	}

	tmp, err := ioutil.TempFile(dir, "."+filepath.Base(s.path)+".tmp-")
	if err != nil {
		return errors.Wrap(err, "creating temporary state file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(bytes); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "writing temporary state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "syncing temporary state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "closing temporary state file")
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "setting state file permissions")
	}
	if err := s.rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "replacing state file")
	}

	// Make the rename itself durable.
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			s.logger.Log("warning", "unable to sync state directory", "dir", dir, "err", err)
		}
		d.Close()
	}
	return nil
}

// Reset removes the record, so the next cycle treats whatever it
// resolves as new. This is for operators clearing a known failure;
// the orchestrator never calls it.
func (s *FileStore) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return &fhdeployerr.Error{
			Type: fhdeployerr.StateStore,
			Err:  err,
			Help: `Could not remove the deployment record at

    ` + s.path + `

Check that you have permission to write to its directory.
`,
		}
	}
	return nil
}
