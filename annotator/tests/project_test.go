package tests

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"falldetect/annotator/schema"
)

func TestCreateAndGetProject(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	project, err := user.createProject("night falls")
	if err != nil {
		t.Fatal(err)
	}

	if project.Name != "night falls" || project.CreatedBy != user.userId {
		t.Fatalf("unexpected project: %+v", project)
	}
	if project.Status != schema.ProjectSetup {
		t.Fatalf("new projects should start in setup, got %v", project.Status)
	}
	if project.QualityThreshold != 0.8 {
		t.Fatalf("expected default quality threshold 0.8, got %v", project.QualityThreshold)
	}
	if project.TotalVideos != 0 || project.CompletedVideos != 0 {
		t.Fatalf("new project counters should be zero: %+v", project)
	}

	fetched, err := user.getProject(project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Id != project.Id || fetched.Name != project.Name {
		t.Fatalf("fetched project does not match created: %+v vs %+v", fetched, project)
	}

	if _, err := user.getProject(99999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateProjectRequiresName(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.createProject(""); !errors.Is(err, ErrUnprocessable) {
		t.Fatalf("expected unprocessable for empty name, got %v", err)
	}
}

func TestUpdateProject(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("carol")
	if err != nil {
		t.Fatal(err)
	}

	project, err := user.createProject("ward 7 review")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := user.updateProject(project.Id, map[string]interface{}{
		"status":            schema.ProjectActive,
		"description":       "q3 batch",
		"quality_threshold": 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}

	if updated.Status != schema.ProjectActive {
		t.Fatalf("expected status %v, got %v", schema.ProjectActive, updated.Status)
	}
	if updated.Description == nil || *updated.Description != "q3 batch" {
		t.Fatalf("description not applied: %+v", updated)
	}
	if updated.QualityThreshold != 0.9 {
		t.Fatalf("quality threshold not applied: %v", updated.QualityThreshold)
	}
	// Omitted fields keep their stored values.
	if updated.Name != "ward 7 review" {
		t.Fatalf("name should be unchanged, got %v", updated.Name)
	}
	if !updated.LastActivity.After(project.LastActivity) {
		t.Fatal("update should bump last_activity")
	}
}

func TestUpdateProjectValidation(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("dave")
	if err != nil {
		t.Fatal(err)
	}

	project, err := user.createProject("validation")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.updateProject(project.Id, map[string]interface{}{"status": "finished"}); !errors.Is(err, ErrUnprocessable) {
		t.Fatalf("expected unprocessable for invalid status, got %v", err)
	}
	if _, err := user.updateProject(project.Id, map[string]interface{}{"quality_threshold": 1.5}); !errors.Is(err, ErrUnprocessable) {
		t.Fatalf("expected unprocessable for out of range threshold, got %v", err)
	}
	if _, err := user.updateProject(99999, map[string]interface{}{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListProjects(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	first, err := alice.createProject("first")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bob.createProject("second"); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.createProject("third"); err != nil {
		t.Fatal(err)
	}

	// Touching the oldest project moves it to the front of the listing.
	time.Sleep(10 * time.Millisecond)
	if _, err := alice.updateProject(first.Id, map[string]interface{}{"status": schema.ProjectActive}); err != nil {
		t.Fatal(err)
	}

	projects, err := alice.listProjects("")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 3 {
		t.Fatalf("expected 3 projects, got %d", len(projects))
	}
	if projects[0].Id != first.Id {
		t.Fatalf("expected most recently active project first, got %+v", projects[0])
	}

	mine, err := alice.listProjects(fmt.Sprintf("?user_id=%v", alice.userId))
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 projects for alice, got %d", len(mine))
	}
	for _, p := range mine {
		if p.CreatedBy != alice.userId {
			t.Fatalf("filter returned foreign project: %+v", p)
		}
	}
}
