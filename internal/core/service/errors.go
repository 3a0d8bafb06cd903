package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

func counterWriteErr(entity string, err error) error {
	if errors.Is(err, port.ErrRecordNotFound) {
		return domain.NotFound(capitalize(entity) + " not found.")
	}
	return storeErr("Failed to update "+entity+".", err)
}

// storeErr maps a storage failure. Lost row races and expired deadlines are
// transient; everything else is internal.
func storeErr(message string, err error) *domain.Error {
	switch {
	case errors.Is(err, port.ErrOptimisticLock):
		return domain.Retryable("Concurrent update detected, please retry.", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Retryable("Booking operation timed out.", err)
	}
	return domain.InternalServer(message, err)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
