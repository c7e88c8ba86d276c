// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for decoding request bodies and query
// parameters into domain values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON decodes a single JSON object into dst, rejecting unknown
// fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type %q, want application/json", errMalformedRequest, ct)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		// Domain errors raised by UnmarshalJSON keep their identity
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidDate) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedRequest)
		}
		return fmt.Errorf("%w: %v", errMalformedRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errMalformedRequest)
	}
	return nil
}

// ParseMonthParams reads a month from two integer query parameters. Both
// are required.
func ParseMonthParams(query url.Values, yearKey, monthKey string) (core.Month, error) {
	yearStr := strings.TrimSpace(query.Get(yearKey))
	monthStr := strings.TrimSpace(query.Get(monthKey))
	if yearStr == "" || monthStr == "" {
		return core.Month{}, fmt.Errorf("%w: %s and %s are required", errMalformedRequest, yearKey, monthKey)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return core.Month{}, fmt.Errorf("%w: %s must be a number", core.ErrInvalidDate, yearKey)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return core.Month{}, fmt.Errorf("%w: %s must be a number", core.ErrInvalidDate, monthKey)
	}
	return core.NewMonth(year, month)
}

// ParseKind reads an optional category kind. Empty means both kinds.
func ParseKind(query url.Values) (core.CategoryKind, error) {
	kind := core.CategoryKind(strings.ToLower(strings.TrimSpace(query.Get("kind"))))
	if kind != "" && !kind.Valid() {
		return "", fmt.Errorf("%w: kind must be expense or income", errMalformedRequest)
	}
	return kind, nil
}

// ParseID reads a positive integer path value.
func ParseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errMalformedRequest, name, r.PathValue(name))
	}
	return id, nil
}

// parseNow reads the optional "now" of a query request. It accepts an
// RFC 3339 timestamp or a bare date, which means midnight in loc.
func parseNow(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: now %q is neither RFC 3339 nor YYYY-MM-DD", core.ErrInvalidDate, s)
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
