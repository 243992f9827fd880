// Package health adds methods for checking the health of service dependencies.
package health

import (
	"encoding/json"
	"net/http"
	"sort"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Checker returns an error indicating if a service is in an unhealthy state.
// Checkers should be implemented by dependencies which can fail, like the
// frame pub/sub backend.
type Checker interface {
	HealthCheck() error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func() error

func (f CheckerFunc) HealthCheck() error { return f() }

// Handler returns an http.Handler that checks the status of all the dependencies.
// Handler responds with either:
// 200 OK if the server can successfully communicate with it's backends or
// 500 if any of the backends are reporting an issue.
// The body maps every check that ran to "ok" or its error.
func Handler(logger kitlog.Logger, allCheckers map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checkers := make(map[string]Checker)
		checks, ok := r.URL.Query()["check"]
		if ok {
			if len(checks) == 0 {
				http.Error(w, "checks must not be empty", http.StatusBadRequest)
				return
			}
			for _, checkName := range checks {
				check, ok := allCheckers[checkName]
				if !ok {
					http.Error(w, "the provided check is not valid", http.StatusBadRequest)
					return
				}
				checkers[checkName] = check
			}
		} else {
			checkers = allCheckers
		}

		results, healthy := CheckHealth(logger, checkers)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(results) //nolint:errcheck
	}
}

// CheckHealth runs the checkers in name order, returning the outcome of
// each and false if any of them failed. CheckHealth logs the reason a
// checker fails.
func CheckHealth(logger kitlog.Logger, checkers map[string]Checker) (map[string]string, bool) {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	results := make(map[string]string, len(checkers))
	for _, name := range names {
		if err := checkers[name].HealthCheck(); err != nil {
			level.Info(logger).Log("component", "healthz", "err", err, "health-checker", name)
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// Nop creates a noop checker. Useful in tests.
func Nop() Checker {
	return CheckerFunc(func() error { return nil })
}
