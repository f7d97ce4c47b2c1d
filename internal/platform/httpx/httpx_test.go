package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var errDomain = errors.New("domain rule broken")

func TestRespondErrorUsesMappersFirst(t *testing.T) {
	rec := httptest.NewRecorder()
	mapper := func(err error) (int, string, bool) {
		if errors.Is(err, errDomain) {
			return http.StatusConflict, "Rule", true
		}
		return 0, "", false
	}
	RespondError(rec, fmt.Errorf("ship: %w", errDomain), mapper)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Rule", body.Title)
	require.Contains(t, body.Detail, "domain rule broken")
}

func TestRespondErrorFallsBackToSentinels(t *testing.T) {
	cases := map[error]int{
		ErrNotFound:               http.StatusNotFound,
		ErrConflict:               http.StatusConflict,
		ErrValidation:             http.StatusBadRequest,
		ErrUnprocessable:          http.StatusUnprocessableEntity,
		errors.New("db exploded"): http.StatusInternalServerError,
	}
	for err, status := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		require.Equal(t, status, rec.Code, err.Error())
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password=secret"))
	require.NotContains(t, rec.Body.String(), "secret")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "a", target.Name)
}
