package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LocalSaver archives payloads under a base directory on local disk. Used
// in development and in deployments that mount durable storage directly.
type LocalSaver struct {
	BaseDir string
	Logger  logrus.FieldLogger
}

func (s *LocalSaver) Save(ctx context.Context, employerID int64, stateCode, filename string, data []byte) (string, error) {
	dest := filepath.Join(s.BaseDir, filepath.FromSlash(objectKey(employerID, stateCode, filename)))
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", errors.Wrap(err, "creating archive directory")
	}
	if err := os.WriteFile(dest, data, 0640); err != nil {
		return "", errors.Wrap(err, "writing archive file")
	}
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"employer_id": employerID,
			"state_code":  stateCode,
			"location":    dest,
		}).Info("payload archived")
	}
	return dest, nil
}
