package tests

import (
	"errors"
	"fmt"
	"testing"

	"falldetect/annotator/schema"
)

func TestUploadVideos(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	project, err := user.createProject("hallway cams")
	if err != nil {
		t.Fatal(err)
	}

	env.prober.fail["/data/cam2.mp4"] = true

	videos, err := user.uploadVideos([]string{"/data/cam1.mp4", "/data/cam2.mp4"}, &project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 imported videos, got %d", len(videos))
	}

	// Both rows share the batch id and start pending.
	if videos[0].UploadBatch != videos[1].UploadBatch {
		t.Fatal("videos in one upload should share a batch id")
	}
	for _, v := range videos {
		if v.Status != schema.VideoPending {
			t.Fatalf("imported videos should be pending, got %v", v.Status)
		}
		if v.ProjectId == nil || *v.ProjectId != project.Id {
			t.Fatalf("video not attached to project: %+v", v)
		}
	}

	// The probed video carries metadata, the failed probe leaves nulls.
	if videos[0].Resolution == nil || *videos[0].Resolution != "1920x1080" {
		t.Fatalf("expected probed resolution, got %+v", videos[0])
	}
	if videos[1].Resolution != nil || videos[1].Framerate != nil || videos[1].Duration != nil {
		t.Fatalf("failed probe should leave metadata unset: %+v", videos[1])
	}

	updated, err := user.getProject(project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if updated.TotalVideos != 2 || updated.CompletedVideos != 0 {
		t.Fatalf("project counters not synced: %+v", updated)
	}
}

func TestUploadValidation(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.uploadVideos([]string{}, nil); !errors.Is(err, ErrUnprocessable) {
		t.Fatalf("expected unprocessable for empty batch, got %v", err)
	}

	missing := int64(99999)
	if _, err := user.uploadVideos([]string{"/data/a.mp4"}, &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing project, got %v", err)
	}

	// The rejected batch must not leave partial rows behind.
	var count int64
	if err := env.db.Model(&schema.Video{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected no videos after rejected uploads, found %d", count)
	}
}

func TestListVideos(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	project, err := alice.createProject("p1")
	if err != nil {
		t.Fatal(err)
	}

	inProject, err := alice.uploadVideos([]string{"/data/a.mp4", "/data/b.mp4"}, &project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.uploadVideos([]string{"/data/c.mp4"}, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := alice.assignVideo(inProject[0].Id, &bob.userId); err != nil {
		t.Fatal(err)
	}

	all, err := alice.listVideos("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 videos, got %d", len(all))
	}

	scoped, err := alice.listVideos(fmt.Sprintf("?project_id=%v", project.Id))
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 2 {
		t.Fatalf("expected 2 videos in project, got %d", len(scoped))
	}

	assigned, err := alice.listVideos(fmt.Sprintf("?assigned_to=%v", bob.userId))
	if err != nil {
		t.Fatal(err)
	}
	if len(assigned) != 1 || assigned[0].Id != inProject[0].Id {
		t.Fatalf("unexpected assigned listing: %+v", assigned)
	}

	unassigned, err := alice.listVideos("?unassigned=true")
	if err != nil {
		t.Fatal(err)
	}
	if len(unassigned) != 2 {
		t.Fatalf("expected 2 unassigned videos, got %d", len(unassigned))
	}

	// The explicit assignee filter wins over unassigned=true.
	both, err := alice.listVideos(fmt.Sprintf("?assigned_to=%v&unassigned=true", bob.userId))
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 1 || both[0].Id != inProject[0].Id {
		t.Fatalf("assigned_to should take precedence: %+v", both)
	}
}

func TestAssignVideo(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	videos, err := alice.uploadVideos([]string{"/data/a.mp4"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	video, err := alice.assignVideo(videos[0].Id, &bob.userId)
	if err != nil {
		t.Fatal(err)
	}
	if video.AssignedTo == nil || *video.AssignedTo != bob.userId {
		t.Fatalf("assignment not applied: %+v", video)
	}

	// A null assignee returns the video to the pool.
	video, err = alice.assignVideo(videos[0].Id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if video.AssignedTo != nil {
		t.Fatalf("unassignment not applied: %+v", video)
	}

	missing := int64(99999)
	if _, err := alice.assignVideo(videos[0].Id, &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing assignee, got %v", err)
	}
	if _, err := alice.assignVideo(99999, &bob.userId); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing video, got %v", err)
	}
}

func TestCompleteVideo(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	project, err := user.createProject("p1")
	if err != nil {
		t.Fatal(err)
	}

	videos, err := user.uploadVideos([]string{"/data/a.mp4", "/data/b.mp4"}, &project.Id)
	if err != nil {
		t.Fatal(err)
	}

	video, err := user.completeVideo(videos[0].Id)
	if err != nil {
		t.Fatal(err)
	}
	if !video.IsCompleted || video.Status != schema.VideoCompleted {
		t.Fatalf("completion not applied: %+v", video)
	}

	updated, err := user.getProject(project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if updated.TotalVideos != 2 || updated.CompletedVideos != 1 {
		t.Fatalf("project counters not synced after completion: %+v", updated)
	}

	// Completing again is idempotent.
	if _, err := user.completeVideo(videos[0].Id); err != nil {
		t.Fatal(err)
	}
	updated, err = user.getProject(project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if updated.CompletedVideos != 1 {
		t.Fatalf("repeat completion should not inflate counters: %+v", updated)
	}

	if _, err := user.completeVideo(99999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVideoMetadata(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	var summary string
	if err := user.Get("/video/metadata?path=/data/a.mp4").Do(&summary); err != nil {
		t.Fatal(err)
	}
	if summary == "" {
		t.Fatal("expected non-empty metadata summary")
	}

	err = user.Get("/video/metadata").Do(nil)
	if err == nil {
		t.Fatal("expected error for missing path parameter")
	}
}
