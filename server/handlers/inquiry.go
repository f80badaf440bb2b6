// Package handlers provides the HTTP handlers of the concierge server.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/teilomillet/concierge/errors"
	"github.com/teilomillet/concierge/server/assistant"
	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/completion"
	"github.com/teilomillet/concierge/server/middleware"
	"github.com/teilomillet/concierge/server/validation"
)

// Responder answers an inquiry with the final assistant turn.
type Responder interface {
	Respond(ctx context.Context, inq assistant.Inquiry) (*chat.Turn, error)
}

// InquiryResponse is the success body of POST /api/route.
type InquiryResponse struct {
	Result *chat.Turn `json:"result"`
}

// InquiryHandler serves POST /api/route.
type InquiryHandler struct {
	responder Responder
	logger    *zap.Logger
}

// NewInquiryHandler creates the inquiry handler.
func NewInquiryHandler(responder Responder, logger *zap.Logger) *InquiryHandler {
	return &InquiryHandler{responder: responder, logger: logger}
}

// ServeHTTP expects the body to have been validated by
// validation.ValidateInquiry and decodes it itself otherwise.
func (h *InquiryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(zap.String("request_id", requestID))

	req, ok := validation.InquiryFromContext(r.Context())
	if !ok {
		var details []validation.ValidationErrorDetail
		var err error
		req, details, err = validation.DecodeInquiry(r)
		if err != nil {
			cerr := errors.NewBadRequestError(requestID, map[string]interface{}{"errors": details})
			errors.LogError(logger, cerr, requestID)
			errors.WriteError(w, cerr)
			return
		}
	}

	logger.Debug("Handling inquiry",
		zap.Int("previous", len(req.Previous)),
		zap.Int("images", len(req.Image)),
		zap.Float64("lang", req.Lang),
	)

	reply, err := h.responder.Respond(r.Context(), assistant.Inquiry{
		Text:    req.Inquiry,
		History: req.Previous,
		Images:  req.Image,
	})
	if err != nil {
		if stderrors.Is(err, context.Canceled) && r.Context().Err() != nil {
			logger.Info("Client went away before the reply was ready")
			return
		}
		cerr := classify(requestID, err)
		errors.LogError(logger, cerr, requestID)
		errors.WriteError(w, cerr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(InquiryResponse{Result: reply}); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// classify maps workflow errors to HTTP errors.
func classify(requestID string, err error) *errors.ConciergeError {
	var cerr *errors.ConciergeError
	if stderrors.As(err, &cerr) {
		return cerr
	}

	switch {
	case stderrors.Is(err, completion.ErrUnavailable):
		return errors.NewUnavailableError(requestID, err)
	case stderrors.Is(err, completion.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeoutError(requestID, err)
	}

	var upstream *completion.Error
	if stderrors.As(err, &upstream) {
		perr := errors.NewProviderError(requestID, "Completion service failed", err)
		if upstream.StatusCode != 0 {
			perr.Details = map[string]interface{}{"upstream_status": upstream.StatusCode}
		}
		return perr
	}
	return errors.NewInternalError(requestID, err)
}
