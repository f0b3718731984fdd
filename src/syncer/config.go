package syncer

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// LockTimeout bounds how long a sync waits for the per-account lock
	// before failing as a conflict.
	LockTimeout time.Duration `envconfig:"SYNC_LOCK_TIMEOUT" default:"5s"`
	// TxTimeout bounds the whole reconcile/regroup/config transaction so a
	// stalled database cannot hang the request worker.
	TxTimeout time.Duration `envconfig:"SYNC_TX_TIMEOUT" default:"15s"`
	// VerifyInvariants runs the group/config consistency check inside the
	// transaction and aborts on violation.
	VerifyInvariants bool `envconfig:"SYNC_VERIFY_INVARIANTS" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
