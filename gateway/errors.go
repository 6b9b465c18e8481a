/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"errors"
	"net/url"
	"strings"

	"github.com/google/go-github/v84/github"
)

// IsTransient reports whether a GitHub API error is worth retrying: rate
// limits, server-side 5xx, or a network-level failure. Everything else,
// 404s and permission errors in particular, is permanent.
func IsTransient(err error) bool {
	var rateLimit *github.RateLimitError
	if errors.As(err, &rateLimit) {
		return true
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return true
	}
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.Response != nil && errResp.Response.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// IsReferenceExists reports whether an error is GitHub rejecting a ref
// creation because the ref already exists.
func IsReferenceExists(err error) bool {
	var errResp *github.ErrorResponse
	if !errors.As(err, &errResp) {
		return false
	}
	if errResp.Response == nil || errResp.Response.StatusCode != 422 {
		return false
	}
	return strings.Contains(strings.ToLower(errResp.Message), "reference already exists")
}
