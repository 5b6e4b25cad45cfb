package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quotevault/quotevault-server/internal/domain"
)

func (s *Server) registerSignatureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:  "submitSignature",
		Method:       http.MethodPost,
		Path:         "/api/v1/signatures/submit",
		Summary:      "Sign a quote",
		Description:  "Records a signature with its drawing. Admins may sign for a participant or a guest",
		Tags:         []string{"Signatures"},
		MaxBodyBytes: MaxSignatureBodySize,
		Security:     []map[string][]string{{"bearer": {}}},
	}, s.handleSubmitSignature)

	huma.Register(s.api, huma.Operation{
		OperationID: "refuseSignature",
		Method:      http.MethodPost,
		Path:        "/api/v1/signatures/refuse",
		Summary:     "Refuse a quote",
		Description: "Records a refusal. Admins may refuse for a participant or a guest",
		Tags:        []string{"Signatures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRefuseSignature)

	huma.Register(s.api, huma.Operation{
		OperationID: "clearSignature",
		Method:      http.MethodPost,
		Path:        "/api/v1/signatures/{id}/admin-clear",
		Summary:     "Clear a signature",
		Description: "Returns a signed or refused row to pending and restarts its window (admin only)",
		Tags:        []string{"Signatures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleClearSignature)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSignatureImage",
		Method:      http.MethodGet,
		Path:        "/api/v1/signatures/{id}/image",
		Summary:     "Get signature image",
		Description: "Returns the stored signature drawing",
		Tags:        []string{"Signatures"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSignatureImage)
}

// === DTOs ===

// SignerFields select whose response is recorded. At most one may be set.
type SignerFields struct {
	SignAsUserID string `json:"sign_as_user_id,omitempty" validate:"excluded_with=GuestName" doc:"Participant to act for (admin only)"`
	GuestName    string `json:"guest_name,omitempty" validate:"omitempty,max=100" doc:"Unregistered signer name (admin only)"`
}

// signAs resolves the signer fields against the caller.
func (f SignerFields) signAs(caller domain.Caller) domain.SignAs {
	switch {
	case f.GuestName != "":
		return domain.GuestSign{Name: f.GuestName}
	case f.SignAsUserID != "" && f.SignAsUserID != caller.UserID:
		return domain.AdminSignFor{ParticipantID: f.SignAsUserID}
	default:
		return domain.SelfSign{}
	}
}

// SubmitSignatureRequest is the request body for signing.
type SubmitSignatureRequest struct {
	QuoteID        string `json:"quote_id" validate:"required" doc:"Quote to sign"`
	SignatureImage []byte `json:"signature_image" doc:"Signature drawing, base64 encoded PNG, JPEG or WebP"`
	SignerFields
}

// SubmitSignatureInput wraps the submit request for Huma.
type SubmitSignatureInput struct {
	Authorization string `header:"Authorization"`
	Body          SubmitSignatureRequest
}

// RefuseSignatureRequest is the request body for refusing.
type RefuseSignatureRequest struct {
	QuoteID string `json:"quote_id" validate:"required" doc:"Quote to refuse"`
	SignerFields
}

// RefuseSignatureInput wraps the refuse request for Huma.
type RefuseSignatureInput struct {
	Authorization string `header:"Authorization"`
	Body          RefuseSignatureRequest
}

// SignatureIDInput addresses one ledger row.
type SignatureIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Signature ID"`
}

// SignatureResponse is a ledger row with the counters it invalidated.
type SignatureResponse struct {
	Signature   *domain.Signature `json:"signature"`
	Invalidates []string          `json:"invalidates" doc:"Counter categories to refetch"`
}

// SignatureOutput wraps the signature response for Huma.
type SignatureOutput struct {
	Body SignatureResponse
}

// SignatureImageOutput is the raw image with caching headers.
type SignatureImageOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// === Handlers ===

func (s *Server) handleSubmitSignature(ctx context.Context, input *SubmitSignatureInput) (*SignatureOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	sig, inv, err := s.services.Signature.Submit(ctx, caller, domain.SignCommand{
		QuoteID:  input.Body.QuoteID,
		As:       input.Body.signAs(caller),
		Decision: domain.DecisionSign,
		Image:    input.Body.SignatureImage,
	})
	if err != nil {
		return nil, err
	}

	return &SignatureOutput{Body: SignatureResponse{Signature: sig, Invalidates: invalidates(inv)}}, nil
}

func (s *Server) handleRefuseSignature(ctx context.Context, input *RefuseSignatureInput) (*SignatureOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	sig, inv, err := s.services.Signature.Submit(ctx, caller, domain.SignCommand{
		QuoteID:  input.Body.QuoteID,
		As:       input.Body.signAs(caller),
		Decision: domain.DecisionRefuse,
	})
	if err != nil {
		return nil, err
	}

	return &SignatureOutput{Body: SignatureResponse{Signature: sig, Invalidates: invalidates(inv)}}, nil
}

func (s *Server) handleClearSignature(ctx context.Context, input *SignatureIDInput) (*SignatureOutput, error) {
	caller, err := s.authenticateAndRequireAdmin(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	sig, inv, err := s.services.Signature.Clear(ctx, caller, input.ID)
	if err != nil {
		return nil, err
	}

	return &SignatureOutput{Body: SignatureResponse{Signature: sig, Invalidates: invalidates(inv)}}, nil
}

func (s *Server) handleGetSignatureImage(ctx context.Context, input *SignatureIDInput) (*SignatureImageOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	data, contentType, err := s.services.Signature.Image(ctx, caller, input.ID)
	if err != nil {
		return nil, err
	}

	return &SignatureImageOutput{
		ContentType:  contentType,
		CacheControl: CachePrivateRevalidate,
		Body:         data,
	}, nil
}
