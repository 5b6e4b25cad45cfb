package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/id"
	"github.com/quotevault/quotevault-server/internal/media/images"
	"github.com/quotevault/quotevault-server/internal/metrics"
	"github.com/quotevault/quotevault-server/internal/normalize"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
)

var signatureInvalidation = domain.Invalidates(domain.CounterPendingSignatures)

// SignatureService records signer decisions on the signature ledger.
type SignatureService struct {
	store     store.Store
	images    *images.Storage
	processor *images.Processor
	counters  *CounterService
	events    store.EventEmitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewSignatureService creates a new signature service.
func NewSignatureService(
	st store.Store,
	imageStorage *images.Storage,
	processor *images.Processor,
	counters *CounterService,
	events store.EventEmitter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SignatureService {
	return &SignatureService{
		store:     st,
		images:    imageStorage,
		processor: processor,
		counters:  counters,
		events:    events,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// signer is a SignAs variant after its own authorization rule passed.
type signer struct {
	key        string
	userID     string
	guestName  string
	resolvedBy string
	via        string
}

// Submit signs or refuses on the ledger. Checks run in a fixed order: the
// quote must exist and be approved, then the SignAs variant must be
// authorized, then the image must be valid, and only then is the ledger
// written. Of two racing submissions for one signer exactly one succeeds.
func (s *SignatureService) Submit(ctx context.Context, caller domain.Caller, cmd domain.SignCommand) (*domain.Signature, domain.Invalidation, error) {
	if cmd.Decision != domain.DecisionSign && cmd.Decision != domain.DecisionRefuse {
		return nil, nil, domainerrors.Validationf("unknown decision %q", cmd.Decision)
	}

	q, err := s.store.GetQuote(ctx, cmd.QuoteID)
	if err != nil {
		return nil, nil, fromStore(err, "quote")
	}
	if !q.ReadableBy(caller) {
		return nil, nil, domainerrors.NotFound("quote not found")
	}
	if !q.Approved {
		return nil, nil, domainerrors.NotApproved(q.ID)
	}

	who, err := s.authorize(ctx, caller, q, cmd.As)
	if err != nil {
		return nil, nil, err
	}

	sigID, err := id.Generate(id.PrefixSignature)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	sig := &domain.Signature{
		ID:         sigID,
		QuoteID:    q.ID,
		SignerKey:  who.key,
		UserID:     who.userID,
		GuestName:  who.guestName,
		State:      cmd.Decision.State(),
		ResolvedBy: who.resolvedBy,
		OpenedAt:   now,
		ResolvedAt: &now,
	}

	switch cmd.Decision {
	case domain.DecisionSign:
		img, err := s.processImage(cmd.Image)
		if err != nil {
			return nil, nil, err
		}
		ref := id.PrefixImage + "-" + sigID + img.Extension()
		if err := s.images.Save(ref, img.Data); err != nil {
			return nil, nil, err
		}
		sig.ImageRef = ref
		sig.ImageDigest = img.Digest
		sig.Blurhash = img.Blurhash
	case domain.DecisionRefuse:
		if len(cmd.Image) > 0 {
			return nil, nil, domainerrors.ValidationWithDetails("A refusal carries no signature image",
				map[string]string{"signature_image": "must be empty"})
		}
	}

	resolved, err := s.store.ResolveSignature(ctx, sig)
	if err != nil {
		s.discardImage(sig.ImageRef)
		var conflict *store.StateConflictError
		if errors.As(err, &conflict) && who.guestName != "" {
			return nil, nil, domainerrors.ErrDuplicateGuestResponse.WithDetails(
				map[string]string{"guest_name": who.guestName})
		}
		if errors.Is(err, store.ErrNotApproved) {
			return nil, nil, domainerrors.NotApproved(q.ID)
		}
		return nil, nil, fromStore(err, "quote")
	}

	s.metrics.SignatureResolved(string(resolved.State), who.via)
	s.events.Emit(sse.NewSignatureResolvedEvent(resolved))
	s.counters.Invalidate(ctx, signatureInvalidation)

	s.logger.Info("signature resolved",
		"quote_id", q.ID,
		"signer", who.key,
		"state", resolved.State,
		"via", who.via,
		"user_id", caller.UserID,
	)

	return resolved, signatureInvalidation, nil
}

// authorize applies the rule of each SignAs variant.
func (s *SignatureService) authorize(ctx context.Context, caller domain.Caller, q *domain.Quote, as domain.SignAs) (*signer, error) {
	switch v := as.(type) {
	case nil, domain.SelfSign:
		if !q.HasParticipant(caller.UserID) {
			return nil, domainerrors.Forbidden("You are not a participant of this quote")
		}
		return &signer{key: domain.UserSignerKey(caller.UserID), userID: caller.UserID, via: "self"}, nil

	case domain.AdminSignFor:
		if !caller.Admin {
			return nil, domainerrors.Forbidden("Only admins can sign on behalf of a participant")
		}
		if !q.HasParticipant(v.ParticipantID) {
			return nil, domainerrors.Forbidden("Not a participant of this quote").
				WithDetails(map[string]string{"sign_as_user_id": v.ParticipantID})
		}
		if v.ParticipantID == caller.UserID {
			return &signer{key: domain.UserSignerKey(caller.UserID), userID: caller.UserID, via: "self"}, nil
		}
		return &signer{
			key:        domain.UserSignerKey(v.ParticipantID),
			userID:     v.ParticipantID,
			resolvedBy: caller.UserID,
			via:        "admin",
		}, nil

	case domain.GuestSign:
		if !caller.Admin {
			return nil, domainerrors.Forbidden("Only admins can record guest signatures")
		}
		name := normalize.DisplayName(v.Name)
		if name == "" {
			return nil, domainerrors.ValidationWithDetails("guest_name is required",
				map[string]string{"guest_name": "required"})
		}
		taken, err := s.store.UserNameTaken(ctx, normalize.NameKey(name))
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domainerrors.ErrNameConflict.WithDetails(map[string]string{"guest_name": name})
		}
		return &signer{
			key:        domain.GuestSignerKey(name),
			guestName:  name,
			resolvedBy: caller.UserID,
			via:        "guest",
		}, nil
	}
	return nil, domainerrors.Validation("unknown signer")
}

func (s *SignatureService) processImage(data []byte) (*images.Processed, error) {
	img, err := s.processor.Process(data)
	switch {
	case errors.Is(err, images.ErrEmpty):
		return nil, domainerrors.ValidationWithDetails("A signature image is required",
			map[string]string{"signature_image": "required"})
	case errors.Is(err, images.ErrTooLarge), errors.Is(err, images.ErrUnsupported):
		return nil, domainerrors.ValidationWithDetails(err.Error(),
			map[string]string{"signature_image": "invalid"})
	case err != nil:
		return nil, err
	}
	return img, nil
}

// Clear resets a signed or refused signature to pending and reopens its
// window. Admin only.
func (s *SignatureService) Clear(ctx context.Context, caller domain.Caller, signatureID string) (*domain.Signature, domain.Invalidation, error) {
	if !caller.Admin {
		return nil, nil, domainerrors.Forbidden("Admin access required")
	}

	cleared, oldRef, err := s.store.ClearSignature(ctx, signatureID, s.now().UTC())
	var conflict *store.StateConflictError
	if errors.As(err, &conflict) {
		return nil, nil, domainerrors.ValidationWithDetails("Only signed or refused signatures can be cleared",
			map[string]string{"state": string(conflict.State)})
	}
	if err != nil {
		return nil, nil, fromStore(err, "signature")
	}

	s.discardImage(oldRef)
	s.metrics.SignatureCleared()
	s.events.Emit(sse.NewSignatureClearedEvent(cleared))
	s.counters.Invalidate(ctx, signatureInvalidation)

	s.logger.Info("signature cleared",
		"quote_id", cleared.QuoteID,
		"signer", cleared.SignerKey,
		"user_id", caller.UserID,
	)

	return cleared, signatureInvalidation, nil
}

// Image returns the stored drawing of a signed signature and its content type.
func (s *SignatureService) Image(ctx context.Context, caller domain.Caller, signatureID string) ([]byte, string, error) {
	sig, err := s.store.GetSignature(ctx, signatureID)
	if err != nil {
		return nil, "", fromStore(err, "signature")
	}
	q, err := s.store.GetQuote(ctx, sig.QuoteID)
	if err != nil {
		return nil, "", fromStore(err, "signature")
	}
	if !q.ReadableBy(caller) || sig.ImageRef == "" {
		return nil, "", domainerrors.NotFound("signature image not found")
	}

	data, err := s.images.Get(sig.ImageRef)
	if errors.Is(err, images.ErrNotFound) {
		return nil, "", domainerrors.NotFound("signature image not found")
	}
	if err != nil {
		return nil, "", err
	}
	return data, images.ContentType(sig.ImageRef), nil
}

func (s *SignatureService) discardImage(ref string) {
	if ref == "" {
		return
	}
	if err := s.images.Delete(ref); err != nil {
		s.logger.Warn("failed to delete signature image", "ref", ref, "error", err)
	}
}
