package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
	catalogsvc "github.com/thirdweb-example/unity-iap-server/internal/services/catalog"
	"github.com/thirdweb-example/unity-iap-server/internal/services/receipts"
	validationsvc "github.com/thirdweb-example/unity-iap-server/internal/services/validation"
	verifysvc "github.com/thirdweb-example/unity-iap-server/internal/services/verify"
	"github.com/thirdweb-example/unity-iap-server/internal/transport/http/dto"
	httperrors "github.com/thirdweb-example/unity-iap-server/internal/transport/http/errors"
)

const (
	msgUnknownProduct   = "Invalid product ID, could not find reward."
	msgMintFailed       = "Unable to sign payload."
	msgAlreadyRedeemed  = "Receipt already redeemed."
	msgAmbiguousReceipt = "Unable to classify receipt."
	msgInvalidBody      = "Invalid request body."
	msgInternal         = "Internal server error."
)

type ValidateHandler struct {
	pipeline *validationsvc.Service
}

func NewValidateHandler(pipeline *validationsvc.Service) *ValidateHandler {
	return &ValidateHandler{pipeline: pipeline}
}

func (h *ValidateHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}

	var req dto.ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	result, err := h.pipeline.Handle(r.Context(), validationsvc.Input{
		Receipt:   model.ReceiptEnvelope{ReceiptData: req.Receipt.ReceiptData},
		ToAddress: req.ToAddress,
	})
	if err != nil {
		writeValidationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.MintResponse)
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verifyErr *verifysvc.Error

	switch {
	case errors.Is(err, receipts.ErrAmbiguousReceipt):
		writeMessage(w, http.StatusBadRequest, msgAmbiguousReceipt)
	case errors.Is(err, catalogsvc.ErrUnknownProduct):
		writeMessage(w, http.StatusBadRequest, msgUnknownProduct)
	case errors.As(err, &verifyErr):
		writeMessage(w, http.StatusUnauthorized, "Unable to validate receipt: "+string(verifyErr.Reason))
	case errors.Is(err, validationsvc.ErrDuplicateReceipt):
		writeMessage(w, http.StatusBadRequest, msgAlreadyRedeemed)
	case errors.Is(err, validationsvc.ErrMintDispatch):
		writeMessage(w, http.StatusBadRequest, msgMintFailed)
	default:
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	httperrors.Write(w, status, dto.ValidationMessage{Message: message})
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
