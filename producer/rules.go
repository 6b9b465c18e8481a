/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package producer

import (
	"context"
	"fmt"
	"strings"

	"github.com/megashkola/code-agent/metrics"
)

// Rules is the deterministic rule-based change producer. It always yields a
// valid, non-empty change set: a per-issue summary document plus any file
// writes matched by simple keyword rules.
type Rules struct{}

// NewRules returns the rule-based fallback producer.
func NewRules() *Rules {
	return &Rules{}
}

// Name implements Interface.
func (*Rules) Name() string { return "rules" }

// ProposeChange implements Interface. It never fails and never returns an
// empty change set.
func (r *Rules) ProposeChange(_ context.Context, req Request) (*ChangeSet, error) {
	cs := &ChangeSet{
		Summary:       fmt.Sprintf("Rule-based change for issue #%d", req.IssueNumber),
		CommitMessage: fmt.Sprintf("Agent update for issue #%d", req.IssueNumber),
	}

	text := strings.ToLower(req.Title + "\n" + req.Body)
	if strings.Contains(text, "hello") && strings.Contains(text, "python") {
		cs.Files = append(cs.Files, File{
			Path:    "hello.py",
			Content: "print(\"Hello, world!\")\n",
		})
	}

	cs.Files = append(cs.Files, File{
		Path:    fmt.Sprintf("agent_output/issue-%d.md", req.IssueNumber),
		Content: r.summaryDocument(req),
	})

	metrics.ProducerRuns.WithLabelValues(r.Name(), "ok").Inc()
	return cs, nil
}

func (*Rules) summaryDocument(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Issue %d\n\n", req.IssueNumber)
	fmt.Fprintf(&sb, "## Title\n%s\n\n", req.Title)
	fmt.Fprintf(&sb, "## Body\n%s\n\n", req.Body)
	if req.Feedback != "" {
		fmt.Fprintf(&sb, "## Reviewer Feedback\n%s\n\n", req.Feedback)
	}
	sb.WriteString("## Agent Note\nNo LLM configured or LLM output unusable; rule-based change applied.\n")
	return sb.String()
}
