package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opsbridge/opsbridge/internal/config"
)

type fakePromptStore struct {
	override string
	err      error
}

func (f *fakePromptStore) GetPromptOverride(ctx context.Context, login string) (string, error) {
	return f.override, f.err
}

func newTestLoader(t *testing.T, part1, part2 string) *config.Loader {
	t.Helper()
	dir := t.TempDir()
	env := &config.Config{
		AppConfigPath:   filepath.Join(dir, "config.json"),
		PromptPart1Path: filepath.Join(dir, "part1.txt"),
		PromptPart2Path: filepath.Join(dir, "part2.md"),
	}
	if part1 != "" {
		if err := os.WriteFile(env.PromptPart1Path, []byte(part1), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if part2 != "" {
		if err := os.WriteFile(env.PromptPart2Path, []byte(part2), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return config.NewLoader(env)
}

func TestComposer_OverrideWins(t *testing.T) {
	loader := newTestLoader(t, "default prompt", "capabilities")
	composer := NewComposer(loader, &fakePromptStore{override: "custom prompt"})

	got := composer.Compose(context.Background(), "alice")
	if got != "custom prompt\n\ncapabilities" {
		t.Errorf("unexpected prompt: %q", got)
	}
}

func TestComposer_BlankOverrideFallsBack(t *testing.T) {
	loader := newTestLoader(t, "default prompt", "capabilities")
	composer := NewComposer(loader, &fakePromptStore{override: "   "})

	got := composer.EffectivePart1(context.Background(), "alice")
	if got != "default prompt" {
		t.Errorf("unexpected part1: %q", got)
	}
}

func TestComposer_StoreErrorFallsBack(t *testing.T) {
	loader := newTestLoader(t, "default prompt", "")
	composer := NewComposer(loader, &fakePromptStore{err: errors.New("db gone")})

	got := composer.EffectivePart1(context.Background(), "alice")
	if got != "default prompt" {
		t.Errorf("unexpected part1: %q", got)
	}
}

func TestComposer_Part2ReadFresh(t *testing.T) {
	dir := t.TempDir()
	env := &config.Config{
		AppConfigPath:   filepath.Join(dir, "config.json"),
		PromptPart1Path: filepath.Join(dir, "part1.txt"),
		PromptPart2Path: filepath.Join(dir, "part2.md"),
	}
	if err := os.WriteFile(env.PromptPart1Path, []byte("default prompt"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.PromptPart2Path, []byte("old capabilities"), 0o644); err != nil {
		t.Fatal(err)
	}
	loader := config.NewLoader(env)
	composer := NewComposer(loader, &fakePromptStore{})

	first := composer.Compose(context.Background(), "alice")
	if first != "default prompt\n\nold capabilities" {
		t.Fatalf("unexpected prompt: %q", first)
	}

	// Part 2 is not cached; an edit is visible without a reload.
	if err := os.WriteFile(env.PromptPart2Path, []byte("new capabilities"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := composer.Compose(context.Background(), "alice")
	if second != "default prompt\n\nnew capabilities" {
		t.Errorf("unexpected prompt after edit: %q", second)
	}
}

func TestComposer_MissingPart2Degrades(t *testing.T) {
	loader := newTestLoader(t, "default prompt", "")
	composer := NewComposer(loader, &fakePromptStore{})

	got := composer.Compose(context.Background(), "alice")
	if got != "default prompt\n\n" {
		t.Errorf("unexpected prompt: %q", got)
	}
}
