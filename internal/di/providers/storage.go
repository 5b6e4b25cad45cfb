package providers

import (
	"github.com/samber/do/v2"

	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/logger"
	"github.com/quotevault/quotevault-server/internal/media/images"
)

// ProvideSignatureStorage provides on-disk storage for signature images.
func ProvideSignatureStorage(i do.Injector) (*images.Storage, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	storage, err := images.NewStorage(cfg.Data.BasePath)
	if err != nil {
		return nil, err
	}

	log.Info("Signature storage initialized", "path", storage.Path(""))

	return storage, nil
}

// ProvideImageProcessor provides the signature image processor.
func ProvideImageProcessor(i do.Injector) (*images.Processor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return images.NewProcessor(cfg.Signatures.MaxImageBytes, log.Logger), nil
}
