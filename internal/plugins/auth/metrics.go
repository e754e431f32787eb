package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for loginAttempts.
const (
	outcomeSuccess      = "success"
	outcomeNotFound     = "not_found"
	outcomeUnauthorized = "unauthorized"
	outcomeError        = "error"
)

// Token kind labels.
const (
	tokenKindSignUp   = "sign_up"
	tokenKindPassword = "password"
)

var (
	// loginAttempts counts Login calls by outcome.
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "darim_auth_login_attempts_total",
		Help: "Total number of login attempts by outcome",
	}, []string{"outcome"})

	// tokensIssued counts tokens accepted by their store.
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "darim_auth_tokens_issued_total",
		Help: "Total number of sign-up and password tokens persisted",
	}, []string{"kind"})

	// notificationFailures counts dropped notification emails.
	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "darim_auth_notification_failures_total",
		Help: "Total number of notification emails that failed to send",
	}, []string{"kind"})
)
