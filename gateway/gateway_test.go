/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-github/v84/github"
	"github.com/stretchr/testify/require"

	"github.com/megashkola/code-agent/controller"
	"github.com/megashkola/code-agent/producer"
)

func respWithStatus(code int) *http.Response {
	return &http.Response{StatusCode: code, Request: &http.Request{Method: "GET", URL: &url.URL{}}}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "rate limit", err: &github.RateLimitError{}, want: true},
		{name: "abuse rate limit", err: &github.AbuseRateLimitError{}, want: true},
		{name: "server error", err: &github.ErrorResponse{Response: respWithStatus(502)}, want: true},
		{name: "not found", err: &github.ErrorResponse{Response: respWithStatus(404)}, want: false},
		{name: "unprocessable", err: &github.ErrorResponse{Response: respWithStatus(422)}, want: false},
		{name: "network", err: &url.Error{Op: "Get", URL: "https://api.github.com", Err: errors.New("connection reset")}, want: true},
		{name: "wrapped server error", err: fmt.Errorf("listing: %w", &github.ErrorResponse{Response: respWithStatus(500)}), want: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsReferenceExists(t *testing.T) {
	t.Parallel()
	exists := &github.ErrorResponse{
		Response: respWithStatus(422),
		Message:  "Reference already exists",
	}
	require.True(t, IsReferenceExists(exists))
	require.True(t, IsReferenceExists(fmt.Errorf("creating branch: %w", exists)))

	require.False(t, IsReferenceExists(&github.ErrorResponse{
		Response: respWithStatus(422),
		Message:  "Validation Failed",
	}))
	require.False(t, IsReferenceExists(errors.New("boom")))
}

func TestBranchName(t *testing.T) {
	t.Parallel()
	require.Equal(t, "agent/issue-17", branchName(17))
}

func TestPRBody(t *testing.T) {
	t.Parallel()
	issue := controller.Issue{Number: 5, Title: "Add caching"}
	cs := &producer.ChangeSet{Summary: "Adds an LRU cache."}

	body := prBody(issue, cs, 2)
	require.Contains(t, body, "Adds an LRU cache.")
	require.Contains(t, body, "Iteration: 2")
	require.Contains(t, body, "Closes #5")

	require.Equal(t, "Agent: Add caching (#5)", prTitle(issue))
}
