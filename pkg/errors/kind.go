package dmchat_errors

import (
	"context"
	"errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindAuth
	KindDomain
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindDomain:
		return "domain"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Classify sorts an error into the client's error taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNoSession), errors.Is(err, ErrSessionExpired):
		return KindAuth
	case errors.Is(err, ErrMalformedEvent):
		return KindMalformed
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrNotEditing), errors.Is(err, ErrWeakPassword):
		return KindDomain
	case errors.Is(err, ErrTransport), errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	}
	return KindUnknown
}

// Operations used to pick a user-facing message.
const (
	OpLogin         = "login"
	OpRegister      = "register"
	OpCreateChat    = "create_chat"
	OpListChats     = "list_chats"
	OpLoadHistory   = "load_history"
	OpSendMessage   = "send_message"
	OpEditMessage   = "edit_message"
	OpDeleteMessage = "delete_message"
	OpLiveChannel   = "live_channel"
)

// UserMessage maps err to the text shown to the user for op.
func UserMessage(op string, err error) string {
	switch {
	case errors.Is(err, ErrWeakPassword):
		return "Password must be at least 8 letters or digits and contain a digit"
	case errors.Is(err, ErrInvalidInput) && (op == OpLogin || op == OpRegister):
		return "Please, fill all fields before"
	case op == OpLogin:
		return "Login failed. Please check your credentials."
	case op == OpRegister && errors.Is(err, ErrConflict):
		return "User with this username already exists"
	case op == OpRegister:
		return "Registration failed. Please try again"
	case op == OpCreateChat && errors.Is(err, ErrNotFound):
		return "No user with such username. Please enter correct username"
	case errors.Is(err, ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, ErrForbidden):
		return "You can't change this message"
	}

	switch op {
	case OpCreateChat:
		return "Could not start a chat. Please try again"
	case OpListChats:
		return "Could not load chats"
	case OpLoadHistory:
		return "Could not load messages"
	case OpSendMessage:
		return "Message was not sent"
	case OpEditMessage:
		return "Message was not edited"
	case OpDeleteMessage:
		return "Message was not deleted"
	case OpLiveChannel:
		return "Live updates are unavailable"
	}
	return "Something went wrong"
}
