// Package store caches the console's entity collections and reconciles them
// with the results of mutations.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/obs"
)

var (
	// ErrValidation reports a local precondition failure; no request was made.
	ErrValidation = errors.New("store: validation failed")
	// ErrNotFound reports a referenced entity missing from the local cache.
	ErrNotFound = errors.New("store: not found")
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func notFoundError(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, msg)
}

// fetchList reads a collection endpoint, treating 404 as empty.
func fetchList[T any](ctx context.Context, client apiclient.Requester, path string) ([]T, error) {
	var items []T
	err := client.Fetch(ctx, path, apiclient.RequestOptions{}, &items)
	if apiclient.IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// failure logs err and returns the message recorded on the store.
func failure(op string, err error, fallback string) string {
	msg := apiclient.Message(err, fallback)
	obs.Warn("store request failed", map[string]any{
		"op":     op,
		"status": apiclient.StatusOf(err),
		"error":  msg,
	})
	return msg
}

// wrapUntyped turns non-API failures into *apiclient.Error with msg.
func wrapUntyped(err error, msg string) error {
	if err == nil {
		return nil
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return &apiclient.Error{Message: msg, Err: err}
}

// spliceByID replaces the element whose key matches or appends item.
func spliceByID[T any, K comparable](list []T, item T, key func(T) K) []T {
	k := key(item)
	for i := range list {
		if key(list[i]) == k {
			list[i] = item
			return list
		}
	}
	return append(list, item)
}
