package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	kitlog "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealth(t *testing.T) {
	checkers := map[string]Checker{
		"fail": CheckerFunc(func() error { return errors.New("fail") }),
		"pass": Nop(),
	}

	results, healthy := CheckHealth(kitlog.NewNopLogger(), checkers)
	require.False(t, healthy)
	assert.Equal(t, map[string]string{"fail": "fail", "pass": "ok"}, results)

	checkers = map[string]Checker{
		"pass": Nop(),
	}
	_, healthy = CheckHealth(kitlog.NewNopLogger(), checkers)
	require.True(t, healthy)
}

func TestHealthzHandler(t *testing.T) {
	logger := kitlog.NewNopLogger()
	failCheck := CheckerFunc(func() error {
		return errors.New("health check failed")
	})
	passCheck := CheckerFunc(func() error {
		return nil
	})

	fail := Handler(logger, map[string]Checker{
		"mock": failCheck,
	})
	pass := Handler(logger, map[string]Checker{
		"mock": passCheck,
	})
	both := Handler(logger, map[string]Checker{
		"pass": passCheck,
		"fail": failCheck,
	})

	httpTests := []struct {
		name       string
		handler    http.Handler
		path       string
		wantHeader int
	}{
		{"pass", pass, "/healthz", http.StatusOK},
		{"fail", fail, "/healthz", http.StatusInternalServerError},
		{"empty check name", pass, "/healthz?check=mock&check=", http.StatusBadRequest},
		{"bad check name", pass, "/healthz?check=mock&check=bad", http.StatusBadRequest},
		{"passing and failing", both, "/healthz", http.StatusInternalServerError},
		{"passing and failing selected", both, "/healthz?check=pass&check=fail", http.StatusInternalServerError},
		{"only passing", both, "/healthz?check=pass", http.StatusOK},
		{"only failing", both, "/healthz?check=fail", http.StatusInternalServerError},
	}
	for _, tt := range httpTests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest("GET", tt.path, nil)
			tt.handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantHeader, rr.Code)
		})
	}
}

func TestHealthzHandlerBody(t *testing.T) {
	h := Handler(kitlog.NewNopLogger(), map[string]Checker{
		"pubsub": CheckerFunc(func() error { return errors.New("redis down") }),
		"tracker": Nop(),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"pubsub": "redis down", "tracker": "ok"}, body)
}
