package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestIsURL(t *testing.T) {
	testCases := map[string]bool{
		"https://github.com/me/decks.git": true,
		"http://example.com/decks":        true,
		"git@github.com:me/decks.git":     true,
		"ssh://git@host/me/decks.git":     true,
		"file:///tmp/decks.git":           true,
		"/home/me/decks":                  false,
		"decks/portuguese.apkg":           false,
		`C:\decks`:                        false,
	}
	for input, expected := range testCases {
		if got := IsURL(input); got != expected {
			t.Errorf("IsURL(%q) = %v, expected %v", input, got, expected)
		}
	}
}

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		name      string
		url       string
		expected  string
		expectErr bool
	}{
		{name: "https", url: "https://github.com/me/decks.git", expected: filepath.Join("repos", "github.com", "me", "decks")},
		{name: "scp-like", url: "git@github.com:me/decks.git", expected: filepath.Join("repos", "github.com", "me", "decks")},
		{name: "no path", url: "https://github.com/", expectErr: true},
		{name: "traversal", url: "https://github.com/../../etc", expectErr: true},
		{name: "garbage", url: "not a url", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.expectErr {
				if err == nil {
					t.Errorf("Expected an error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LocalPath() returned an unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestSyncClonesThenPulls(t *testing.T) {
	upstream := t.TempDir()
	repo, err := git.PlainInit(upstream, false)
	if err != nil {
		t.Fatalf("PlainInit() returned an unexpected error: %v", err)
	}
	commitFile(t, repo, upstream, "one.apkg")

	local := filepath.Join(t.TempDir(), "checkout")
	ctx := context.Background()
	if err := Sync(ctx, upstream, local, nil); err != nil {
		t.Fatalf("Sync() clone returned an unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(local, "one.apkg")); err != nil {
		t.Fatalf("Expected cloned file: %v", err)
	}

	if err := Sync(ctx, upstream, local, nil); err != nil {
		t.Fatalf("Sync() up-to-date pull returned an unexpected error: %v", err)
	}

	commitFile(t, repo, upstream, "two.apkg")
	if err := Sync(ctx, upstream, local, nil); err != nil {
		t.Fatalf("Sync() pull returned an unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(local, "two.apkg")); err != nil {
		t.Errorf("Expected pulled file: %v", err)
	}
}

func commitFile(t *testing.T, repo *git.Repository, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
		t.Fatalf("WriteFile() returned an unexpected error: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() returned an unexpected error: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	_, err = wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit() returned an unexpected error: %v", err)
	}
}
