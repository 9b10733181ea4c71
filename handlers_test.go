package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
)

func performError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	respondError(c, err)
	return w
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"date sequence violation", models.ErrDateSequenceViolation, http.StatusConflict},
		{"control sum locked", models.ErrControlSumLocked, http.StatusConflict},
		{"invalid reading", models.ErrInvalidReading, http.StatusBadRequest},
		{"write integrity failure", models.ErrWriteIntegrityFailure, http.StatusServiceUnavailable},
		{"business validation", errors.New("sold quantity must not be negative"), http.StatusBadRequest},
		{"mysql driver failure", &mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, http.StatusInternalServerError},
		{"context deadline", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := performError(t, tc.err)
			if w.Code != tc.status {
				t.Fatalf("got %d, want %d", w.Code, tc.status)
			}
		})
	}
}

// Infrastructure detail stays in the logs; the response carries a generic
// message. Business errors keep their actionable text.
func TestRespondErrorHidesInternalDetail(t *testing.T) {
	w := performError(t, &mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	if strings.Contains(w.Body.String(), "Lock wait timeout") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}

	w = performError(t, errors.New("sold quantity must not be negative"))
	if !strings.Contains(w.Body.String(), "sold quantity must not be negative") {
		t.Fatalf("business message lost: %s", w.Body.String())
	}
}

// A malformed or wrong-typed body must come back as a 400 with a message,
// never escalate into a recovery 500.
func TestSigninRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/signin", signinHandler())

	bodies := []string{
		`{"username": "admin", "password"`,
		`{"username": "admin", "password": 5}`,
		`not json at all`,
	}
	for _, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: got %d, want %d", body, w.Code, http.StatusBadRequest)
		}
		if !strings.Contains(w.Body.String(), "error") {
			t.Fatalf("body %q: response has no error payload: %s", body, w.Body.String())
		}
	}
}
