package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/service"
)

func (s *Server) registerQuoteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listQuotes",
		Method:      http.MethodGet,
		Path:        "/api/v1/quotes",
		Summary:     "List quotes",
		Description: "Returns quotes readable by the caller, narrowed by filter, speaker and free text",
		Tags:        []string{"Quotes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListQuotes)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createQuote",
		Method:        http.MethodPost,
		Path:          "/api/v1/quotes",
		Summary:       "Create quote",
		Description:   "Records a new quote. Only admins may create it approved or redacted",
		Tags:          []string{"Quotes"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateQuote)

	huma.Register(s.api, huma.Operation{
		OperationID: "getQuote",
		Method:      http.MethodGet,
		Path:        "/api/v1/quotes/{id}",
		Summary:     "Get quote",
		Description: "Returns a quote with its signatures, vote tallies and signature deadline",
		Tags:        []string{"Quotes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetQuote)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateQuote",
		Method:      http.MethodPut,
		Path:        "/api/v1/quotes/{id}",
		Summary:     "Update quote",
		Description: "Replaces the writable state of a quote",
		Tags:        []string{"Quotes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateQuote)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteQuote",
		Method:      http.MethodDelete,
		Path:        "/api/v1/quotes/{id}",
		Summary:     "Delete quote",
		Description: "Deletes a quote with its signatures, votes and flags",
		Tags:        []string{"Quotes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteQuote)
}

// === DTOs ===

// LineRequest is one line of a quote.
type LineRequest struct {
	SpeakerName string `json:"speaker_name" validate:"required_without=Text,max=100" doc:"Who said it"`
	Text        string `json:"text" validate:"required_without=SpeakerName,max=2000" doc:"What was said"`
	UserID      string `json:"user_id,omitempty" validate:"omitempty,max=64" doc:"Registered user who said it"`
}

// QuoteRequest is the request body for creating or replacing a quote.
type QuoteRequest struct {
	Lines        []LineRequest `json:"lines" validate:"required,min=1,max=50,dive" doc:"Lines in order"`
	Participants []string      `json:"participants,omitempty" validate:"omitempty,max=50,dive,required" doc:"User IDs required to sign"`
	Visible      bool          `json:"visible,omitempty" doc:"Readable by everyone once approved"`
	Approved     bool          `json:"approved,omitempty" doc:"Approved by an admin"`
	Redacted     bool          `json:"redacted,omitempty" doc:"Line text hidden from non-participants"`
	Notes        string        `json:"notes,omitempty" validate:"max=2000" doc:"Context for the quote"`
	SourceURL    string        `json:"source_url,omitempty" validate:"omitempty,url,max=2048" doc:"Where the quote came from"`
	SourceImage  string        `json:"source_image_ref,omitempty" validate:"omitempty,max=512" doc:"Stored screenshot or photo of the original"`
	SaidOn       *FlexDate     `json:"said_on,omitempty" doc:"When it was said"`
}

func (r QuoteRequest) toInput() service.QuoteInput {
	lines := make([]service.LineInput, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = service.LineInput{SpeakerName: l.SpeakerName, Text: l.Text, UserID: l.UserID}
	}
	return service.QuoteInput{
		Lines:          lines,
		Participants:   r.Participants,
		Visible:        r.Visible,
		Approved:       r.Approved,
		Redacted:       r.Redacted,
		Notes:          r.Notes,
		SourceURL:      r.SourceURL,
		SourceImageRef: r.SourceImage,
		SaidOn:         r.SaidOn.Ptr(),
	}
}

// CreateQuoteInput wraps the create quote request for Huma.
type CreateQuoteInput struct {
	Authorization string `header:"Authorization"`
	Body          QuoteRequest
}

// UpdateQuoteInput wraps the update quote request for Huma.
type UpdateQuoteInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Quote ID"`
	Body          QuoteRequest
}

// QuoteIDInput addresses one quote.
type QuoteIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Quote ID"`
}

// QuoteMutationResponse is a changed quote with the counters it invalidated.
type QuoteMutationResponse struct {
	Quote       *domain.Quote `json:"quote" doc:"Quote as the caller sees it"`
	Invalidates []string      `json:"invalidates" doc:"Counter categories to refetch"`
}

// QuoteMutationOutput wraps the quote mutation response for Huma.
type QuoteMutationOutput struct {
	Body QuoteMutationResponse
}

// QuoteDetailOutput wraps the quote detail for Huma.
type QuoteDetailOutput struct {
	Body *domain.QuoteDetail
}

// ListQuotesInput contains parameters for listing quotes.
type ListQuotesInput struct {
	Authorization string `header:"Authorization"`
	Filter        string `query:"filter" default:"all" enum:"all,public,submitted,unapproved,unrated,flagged,pending_signatures" doc:"List scope"`
	Q             string `query:"q" doc:"Free text over speakers, lines and notes"`
	Speaker       string `query:"speaker" doc:"Only quotes with a line by this speaker"`
	Limit         int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Page size"`
	Offset        int    `query:"offset" minimum:"0" doc:"Items to skip"`
}

// ListQuotesResponse contains a page of quotes.
type ListQuotesResponse struct {
	Quotes []*domain.Quote `json:"quotes" doc:"Quotes in newest-first order"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// ListQuotesOutput wraps the list quotes response for Huma.
type ListQuotesOutput struct {
	Body ListQuotesResponse
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	Message     string   `json:"message" doc:"Success message"`
	Invalidates []string `json:"invalidates" doc:"Counter categories to refetch"`
}

// DeleteOutput wraps the delete response for Huma.
type DeleteOutput struct {
	Body DeleteResponse
}

// === Handlers ===

func (s *Server) handleListQuotes(ctx context.Context, input *ListQuotesInput) (*ListQuotesOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	quotes, err := s.services.Quote.List(ctx, caller, service.ListOptions{
		Filter:  domain.QuoteFilter(input.Filter),
		Speaker: input.Speaker,
		Query:   input.Q,
		Limit:   limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return nil, err
	}
	if quotes == nil {
		quotes = []*domain.Quote{}
	}

	return &ListQuotesOutput{Body: ListQuotesResponse{Quotes: quotes, Limit: limit, Offset: input.Offset}}, nil
}

func (s *Server) handleCreateQuote(ctx context.Context, input *CreateQuoteInput) (*QuoteMutationOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	q, inv, err := s.services.Quote.Create(ctx, caller, input.Body.toInput())
	if err != nil {
		return nil, err
	}

	return &QuoteMutationOutput{Body: QuoteMutationResponse{Quote: q, Invalidates: invalidates(inv)}}, nil
}

func (s *Server) handleGetQuote(ctx context.Context, input *QuoteIDInput) (*QuoteDetailOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	detail, err := s.services.Quote.Get(ctx, caller, input.ID)
	if err != nil {
		return nil, err
	}

	return &QuoteDetailOutput{Body: detail}, nil
}

func (s *Server) handleUpdateQuote(ctx context.Context, input *UpdateQuoteInput) (*QuoteMutationOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	q, inv, err := s.services.Quote.Update(ctx, caller, input.ID, input.Body.toInput())
	if err != nil {
		return nil, err
	}

	return &QuoteMutationOutput{Body: QuoteMutationResponse{Quote: q, Invalidates: invalidates(inv)}}, nil
}

func (s *Server) handleDeleteQuote(ctx context.Context, input *QuoteIDInput) (*DeleteOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	inv, err := s.services.Quote.Delete(ctx, caller, input.ID)
	if err != nil {
		return nil, err
	}

	return &DeleteOutput{Body: DeleteResponse{Message: "Quote deleted", Invalidates: invalidates(inv)}}, nil
}

// invalidates renders an invalidation as a never-null list.
func invalidates(inv domain.Invalidation) []string {
	if len(inv) == 0 {
		return []string{}
	}
	return inv.Strings()
}
