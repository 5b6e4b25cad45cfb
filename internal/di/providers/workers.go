package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/logger"
	"github.com/quotevault/quotevault-server/internal/service"
)

// ExpirationJob runs the periodic signature expiration sweep.
type ExpirationJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable. It waits for an in-flight sweep.
func (j *ExpirationJob) Shutdown() error {
	j.cancel()
	<-j.done
	return nil
}

// ProvideExpirationJob starts the expiration scheduler. The first sweep
// runs immediately so signatures that lapsed while the server was down are
// resolved at startup.
func ProvideExpirationJob(i do.Injector) (*ExpirationJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	expirations := do.MustInvoke[*service.ExpirationService](i)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		expirations.Run(ctx, cfg.Signatures.SweepInterval)
	}()

	log.Info("Expiration scheduler started",
		"interval", cfg.Signatures.SweepInterval,
		"window", cfg.Signatures.ExpiryWindow,
	)

	return &ExpirationJob{cancel: cancel, done: done}, nil
}
