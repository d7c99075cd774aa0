// internal/controller/respond.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/zapleopard/campaign-dispatcher/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var notFound *appErrors.ErrCampaignNotFound
	var customerNotFound *appErrors.ErrCustomerNotFound
	var invalidTransition *appErrors.ErrInvalidTransition
	var finished *appErrors.ErrCampaignFinished
	var validation *appErrors.ErrValidation
	switch {
	case errors.As(err, &notFound), errors.As(err, &customerNotFound):
		status = http.StatusNotFound
	case errors.As(err, &invalidTransition), errors.As(err, &finished):
		status = http.StatusConflict
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
