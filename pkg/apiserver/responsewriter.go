package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/sirupsen/logrus"
)

func writeError(w http.ResponseWriter, httpStatus int, err error) {
	if httpStatus >= http.StatusInternalServerError {
		logrus.Errorf("got a response error: %v", err)
	} else {
		logrus.Debugf("got a response error: %v", err)
	}
	o := model.ErrorResponse{
		Status:  httpStatus,
		Message: err.Error(),
	}
	res, _ := json.Marshal(o)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(res)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	res, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res)
}

// handleError writes err with the status its kind maps to.
func handleError(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), err)
}

var errorStatus = []struct {
	err    error
	status int
}{
	{model.ErrInvalidSignature, http.StatusUnauthorized},
	{model.ErrNotAuthorized, http.StatusForbidden},
	{model.ErrInsufficientPay, http.StatusPaymentRequired},
	{model.ErrSystemPaused, http.StatusServiceUnavailable},
	{model.ErrNotFound, http.StatusNotFound},
	{model.ErrAuctionNotFound, http.StatusNotFound},
	{model.ErrDomainExpired, http.StatusGone},
	{model.ErrGracePeriodExpired, http.StatusGone},
	{model.ErrExpired, http.StatusGone},
	{model.ErrNameUnavailable, http.StatusConflict},
	{model.ErrAuctionActive, http.StatusConflict},
	{model.ErrCommitClosed, http.StatusConflict},
	{model.ErrRevealNotOpen, http.StatusConflict},
	{model.ErrRevealClosed, http.StatusConflict},
	{model.ErrAlreadyRevealed, http.StatusConflict},
	{model.ErrAlreadyFinalized, http.StatusConflict},
	{model.ErrAuctionNotEnded, http.StatusConflict},
	{model.ErrNoBids, http.StatusConflict},
	{model.ErrNonceReused, http.StatusConflict},
	{model.ErrInvariantViolation, http.StatusConflict},
	{model.ErrInvalidLabel, http.StatusBadRequest},
	{model.ErrInvalidDuration, http.StatusBadRequest},
	{model.ErrInvalidRecipient, http.StatusBadRequest},
	{model.ErrInvalidPricing, http.StatusBadRequest},
	{model.ErrInvalidCapability, http.StatusBadRequest},
	{model.ErrInvalidWindow, http.StatusBadRequest},
	{model.ErrCommitmentMismatch, http.StatusBadRequest},
}

func statusOf(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
