package domain

import "errors"

var (
	ErrPresentationNotFound = errors.New("presentation not found")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrResponseNotFound     = errors.New("response not found")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrSessionAlreadyLive   = errors.New("live session already started")
	ErrSessionNotLive       = errors.New("presentation is not live")
	ErrQuestionNotActive    = errors.New("question is not active")
	ErrDuplicateResponse    = errors.New("duplicate response within debounce window")
	ErrRateLimited          = errors.New("submission rate limit exceeded")
)
