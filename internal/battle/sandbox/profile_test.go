package sandbox

import (
	"context"
	"reflect"
	"testing"
)

func TestNewLocalProfileRepositoryParsesCommands(t *testing.T) {
	repo, err := NewLocalProfileRepository([]LanguageProfileConfig{
		{
			ID:             "javascript",
			SourceFileName: "main.js",
			CheckCommand:   "node --check {source}",
			RunCommand:     `node {source}`,
			Env:            []string{"NODE_ENV=production"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	profile, err := repo.GetProfile(context.Background(), "javascript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantCheck := []string{"node", "--check", "{source}"}
	if !reflect.DeepEqual(profile.CheckCommand, wantCheck) {
		t.Fatalf("check command = %v, want %v", profile.CheckCommand, wantCheck)
	}
	wantRun := []string{"node", "{source}"}
	if !reflect.DeepEqual(profile.RunCommand, wantRun) {
		t.Fatalf("run command = %v, want %v", profile.RunCommand, wantRun)
	}
}

func TestNewLocalProfileRepositoryRejectsMissingRunCommand(t *testing.T) {
	_, err := NewLocalProfileRepository([]LanguageProfileConfig{
		{ID: "python", SourceFileName: "main.py"},
	})
	if err == nil {
		t.Fatal("expected error for missing run command")
	}
}

func TestGetProfileUnknownLanguage(t *testing.T) {
	repo, err := NewLocalProfileRepository(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetProfile(context.Background(), "cobol"); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestExpandCommand(t *testing.T) {
	got := expandCommand([]string{"node", "--check", "{source}"}, "/tmp/ws/main.js")
	want := []string{"node", "--check", "/tmp/ws/main.js"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expanded = %v, want %v", got, want)
	}
}
