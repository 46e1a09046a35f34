package main

import (
	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// acquireLock takes an exclusive process lockfile at path. An empty path
// takes no lock. The returned func releases it.
func acquireLock(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "jobdb: lock %s", path)
	}
	if !ok {
		return nil, eris.Errorf("jobdb: another run holds %s", path)
	}

	zap.L().Debug("lock acquired", zap.String("path", path))
	return func() {
		if err := fl.Unlock(); err != nil {
			zap.L().Warn("failed to release lock", zap.String("path", path), zap.Error(err))
		}
	}, nil
}
