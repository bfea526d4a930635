package dmchat_errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorUnwrapsToSentinel(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusBadRequest, ErrInvalidInput},
		{http.StatusBadGateway, ErrServiceUnavailable},
	}
	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", &APIError{Op: "GET /chats", Status: tc.status})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Equal(t, tc.status, StatusOf(err))
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Op: "POST /login", Status: 401, Detail: "Invalid credentials"}
	assert.Equal(t, "POST /login: 401 Invalid credentials", err.Error())

	err = &APIError{Op: "GET /me", Status: 500}
	assert.Equal(t, "GET /me: 500 Internal Server Error", err.Error())
	assert.Equal(t, 0, StatusOf(errors.New("plain")))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindAuth, Classify(&APIError{Status: 401}))
	assert.Equal(t, KindAuth, Classify(ErrNoSession))
	assert.Equal(t, KindDomain, Classify(&APIError{Status: 404}))
	assert.Equal(t, KindDomain, Classify(&APIError{Status: 409}))
	assert.Equal(t, KindTransport, Classify(fmt.Errorf("dial: %w", ErrTransport)))
	assert.Equal(t, KindTransport, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindMalformed, Classify(fmt.Errorf("frame: %w", ErrMalformedEvent)))
	assert.Equal(t, KindUnknown, Classify(errors.New("boom")))
	assert.Equal(t, "domain", KindDomain.String())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "No user with such username. Please enter correct username",
		UserMessage(OpCreateChat, &APIError{Status: 404}))
	assert.Equal(t, "Login failed. Please check your credentials.",
		UserMessage(OpLogin, &APIError{Status: 401}))
	assert.Equal(t, "Please, fill all fields before", UserMessage(OpLogin, ErrInvalidInput))
	assert.Equal(t, "User with this username already exists",
		UserMessage(OpRegister, &APIError{Status: 409}))
	assert.Equal(t, "Registration failed. Please try again", UserMessage(OpRegister, ErrTransport))
	assert.Equal(t, "Could not load messages", UserMessage(OpLoadHistory, ErrTransport))
	assert.Equal(t, "Something went wrong", UserMessage("other", errors.New("x")))
}
