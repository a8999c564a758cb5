package webhook

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tunecast/internal/distribution"
	"tunecast/internal/transport/http/shared"
	dErrors "tunecast/pkg/domain-errors"
)

// SignatureHeader carries the hex HMAC of the raw request body.
const SignatureHeader = "X-Tunecast-Signature"

const maxPayloadBytes = 64 << 10

// Handler exposes the platform callback endpoint. It sits outside the
// authenticated API surface: webhooks authenticate with signatures, not JWTs.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/{platform}", h.receive)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	platform := distribution.Platform(chi.URLParam(r, "platform"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read webhook body"))
		return
	}

	outcome, err := h.service.Process(r.Context(), platform, body, r.Header.Get(SignatureHeader))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "processed",
		"outcome": string(outcome),
	})
}
