package domain

import (
	"errors"
	"fmt"
)

// ErrNoTargets — в справочнике нет ни одной беседы, рассылать некуда.
// Поднимается до вызывающей стороны webhook-а как отказ запроса.
var ErrNoTargets = errors.New("no conversation targets registered")

// AuthError — провал client-credentials обмена. Терминальная ошибка для
// обрабатываемого решения; несёт статус и тело ответа для диагностики.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token request failed with status %d: %s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DownstreamError — non-2xx от downstream API или от response_url.
// Ретраев нет: каждый клик аппрувера — один полный прогон без повторов.
type DownstreamError struct {
	Status int
	Body   string
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream responded with status %d: %s", e.Status, e.Body)
}
