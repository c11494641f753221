package pos

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreRegisteredWithDefaultRegistry(t *testing.T) {
	dup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_auth_attempts_total",
		Help: "POS vendor login attempts by outcome",
	}, []string{"outcome"})

	err := prometheus.DefaultRegisterer.Register(dup)

	var already prometheus.AlreadyRegisteredError
	require.True(t, errors.As(err, &already), "expected AlreadyRegisteredError, got %v", err)
}

func TestAuthAttemptsAreCounted(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(loginHandler(t, &logins, "secret-one", 3600))
	defer srv.Close()

	tm, err := NewTokenManager(testCredentials(srv.URL), srv.Client(), nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(authAttemptsTotal.WithLabelValues("success"))
	_, err = tm.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(authAttemptsTotal.WithLabelValues("success")))
}

func TestStateToFloat(t *testing.T) {
	assert.Equal(t, 0.0, stateToFloat(gobreaker.StateClosed))
	assert.Equal(t, 1.0, stateToFloat(gobreaker.StateHalfOpen))
	assert.Equal(t, 2.0, stateToFloat(gobreaker.StateOpen))
}
