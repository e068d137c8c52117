package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type startSessionBody struct {
	BankAccountID    string `json:"bank_account_id" validate:"required"`
	PeriodStart      string `json:"period_start" validate:"required"`
	PeriodEnd        string `json:"period_end" validate:"required"`
	OpeningBalance   int64  `json:"opening_balance"`
	StatementBalance int64  `json:"statement_balance"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := startSessionBody{
			BankAccountID:    "acct-1",
			PeriodStart:      "2026-01-01T00:00:00Z",
			PeriodEnd:        "2026-01-31T00:00:00Z",
			OpeningBalance:   10000,
			StatementBalance: 10500,
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("missing required fields", func(t *testing.T) {
		invalid := startSessionBody{
			OpeningBalance: 10000,
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/sessions", strings.NewReader(`{"bank_account_id":"acct-1"}`))
		w := httptest.NewRecorder()

		var body startSessionBody
		err := DecodeJSONBody(w, r, &body)

		assert.NoError(t, err)
		assert.Equal(t, "acct-1", body.BankAccountID)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/sessions", strings.NewReader(`{"bank_account_id":`))
		w := httptest.NewRecorder()

		var body startSessionBody
		err := DecodeJSONBody(w, r, &body)

		assert.Error(t, err)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/sessions", strings.NewReader(`{"bank_account_id":"acct-1","surprise":true}`))
		w := httptest.NewRecorder()

		var body startSessionBody
		err := DecodeJSONBody(w, r, &body)

		assert.Error(t, err)
	})

	t.Run("trailing content rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/sessions", strings.NewReader(`{"bank_account_id":"acct-1"}{"bank_account_id":"acct-2"}`))
		w := httptest.NewRecorder()

		var body startSessionBody
		err := DecodeJSONBody(w, r, &body)

		assert.Error(t, err)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("validation details included", func(t *testing.T) {
		vh := NewValidationHelper()
		invalid := startSessionBody{}

		validationErr := vh.ValidateStruct(&invalid)
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "BankAccountID")
		assert.Contains(t, response.Details, "PeriodStart")
		assert.Contains(t, response.Details, "PeriodEnd")
	})
}
