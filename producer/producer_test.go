/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package producer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewSelectsVariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, tc := range []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "no provider", cfg: Config{}, want: "rules"},
		{name: "provider without key", cfg: Config{Provider: "openai"}, want: "rules"},
		{name: "anthropic", cfg: Config{Provider: "anthropic", APIKey: "k"}, want: "claude"},
		{name: "claude alias", cfg: Config{Provider: "Claude", APIKey: "k"}, want: "claude"},
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "k"}, want: "openai"},
		{name: "unknown provider", cfg: Config{Provider: "yandex", APIKey: "k"}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(ctx, tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown provider")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tc.want {
				t.Errorf("Name() = %q, want %q", p.Name(), tc.want)
			}
		})
	}
}

func TestRulesAlwaysNonEmpty(t *testing.T) {
	t.Parallel()
	cs, err := NewRules().ProposeChange(context.Background(), Request{
		IssueNumber: 7,
		Title:       "Improve docs",
		Body:        "Please document the setup.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Empty() {
		t.Fatal("rule-based producer returned an empty change set")
	}
	if cs.CommitMessage != "Agent update for issue #7" {
		t.Errorf("CommitMessage = %q", cs.CommitMessage)
	}

	var paths []string
	for _, f := range cs.Files {
		paths = append(paths, f.Path)
	}
	if diff := cmp.Diff([]string{"agent_output/issue-7.md"}, paths); diff != "" {
		t.Errorf("unexpected paths (-want +got):\n%s", diff)
	}
}

func TestRulesHelloPython(t *testing.T) {
	t.Parallel()
	cs, err := NewRules().ProposeChange(context.Background(), Request{
		IssueNumber: 3,
		Title:       "Add hello world",
		Body:        "Write a Python hello script.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var hello *File
	for i := range cs.Files {
		if cs.Files[i].Path == "hello.py" {
			hello = &cs.Files[i]
		}
	}
	if hello == nil {
		t.Fatal("expected hello.py in the change set")
	}
	if !strings.Contains(hello.Content, "Hello, world!") {
		t.Errorf("hello.py content = %q", hello.Content)
	}
}

func TestRulesDeterministic(t *testing.T) {
	t.Parallel()
	req := Request{IssueNumber: 11, Title: "T", Body: "B", Feedback: "F"}
	first, err := NewRules().ProposeChange(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewRules().ProposeChange(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rule-based producer is not deterministic (-first +second):\n%s", diff)
	}
}

func TestParseChangeSet(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name      string
		input     string
		wantFiles int
		wantErr   error
	}{
		{
			name:      "plain json",
			input:     `{"summary":"s","commit_message":"c","files":[{"path":"a.go","content":"x"}]}`,
			wantFiles: 1,
		},
		{
			name: "fenced json",
			input: "```json\n" +
				`{"summary":"s","commit_message":"c","files":[{"path":"a.go","content":"x"}]}` +
				"\n```",
			wantFiles: 1,
		},
		{
			name:      "surrounding prose",
			input:     "Here is the change:\n{\"summary\":\"s\",\"commit_message\":\"c\",\"files\":[{\"path\":\"a.go\",\"content\":\"x\"},{\"path\":\"b.go\",\"content\":\"y\"}]}\nDone.",
			wantFiles: 2,
		},
		{
			name:    "no files",
			input:   `{"summary":"s","commit_message":"c","files":[]}`,
			wantErr: ErrEmptyChange,
		},
		{
			name:    "no json",
			input:   "I could not produce a change.",
			wantErr: errors.New("any"),
		},
		{
			name:    "path traversal",
			input:   `{"files":[{"path":"../etc/passwd","content":"x"}]}`,
			wantErr: errors.New("any"),
		},
		{
			name:    "absolute path",
			input:   `{"files":[{"path":"/etc/passwd","content":"x"}]}`,
			wantErr: errors.New("any"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cs, err := parseChangeSet(tc.input)
			if tc.wantErr != nil {
				if err == nil {
					t.Fatal("expected error")
				}
				if errors.Is(tc.wantErr, ErrEmptyChange) && !errors.Is(err, ErrEmptyChange) {
					t.Fatalf("expected ErrEmptyChange, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cs.Files) != tc.wantFiles {
				t.Errorf("len(Files) = %d, want %d", len(cs.Files), tc.wantFiles)
			}
		})
	}
}

func TestUserPromptIncludesFeedback(t *testing.T) {
	t.Parallel()
	withFeedback := userPrompt(Request{IssueNumber: 1, Title: "t", Body: "b", Feedback: "needs tests"})
	if !strings.Contains(withFeedback, "needs tests") {
		t.Error("expected feedback in prompt")
	}
	without := userPrompt(Request{IssueNumber: 1, Title: "t", Body: "b"})
	if strings.Contains(without, "Reviewer feedback") {
		t.Error("did not expect feedback section without feedback")
	}
}
