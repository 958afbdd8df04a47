package tests

import (
	"errors"
	"testing"

	"falldetect/annotator/schema"
)

func setupVideo(t *testing.T, user client) schema.Video {
	videos, err := user.uploadVideos([]string{"/data/a.mp4"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return videos[0]
}

func TestSaveAndGetAnnotations(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	video := setupVideo(t, user)

	temporal, err := user.saveTemporal(map[string]interface{}{
		"video_id": video.Id, "start_time": 4.2, "end_time": 6.8,
		"start_frame": 126, "end_frame": 204, "label": "fall",
	})
	if err != nil {
		t.Fatal(err)
	}
	if temporal.Label != "fall" || temporal.VideoId != video.Id {
		t.Fatalf("unexpected temporal annotation: %+v", temporal)
	}
	if temporal.CreatedBy == nil || *temporal.CreatedBy != user.userId {
		t.Fatalf("annotation should record its author: %+v", temporal)
	}

	bbox, err := user.saveBbox(map[string]interface{}{
		"video_id": video.Id, "frame_index": 150,
		"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4, "part_label": "head",
	})
	if err != nil {
		t.Fatal(err)
	}
	if bbox.PartLabel != "head" || bbox.VideoId != video.Id {
		t.Fatalf("unexpected bbox annotation: %+v", bbox)
	}

	annotations, err := user.getAnnotations(video.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations.Temporal) != 1 || len(annotations.Bboxes) != 1 {
		t.Fatalf("unexpected annotation counts: %+v", annotations)
	}
	if annotations.Temporal[0].Id != temporal.Id || annotations.Bboxes[0].Id != bbox.Id {
		t.Fatalf("fetched annotations do not match saved: %+v", annotations)
	}
}

func TestAnnotationOrdering(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}
	video := setupVideo(t, user)

	// Inserted out of order, returned ordered by start time.
	for _, start := range []float64{8.0, 2.0, 5.0} {
		_, err := user.saveTemporal(map[string]interface{}{
			"video_id": video.Id, "start_time": start, "end_time": start + 1,
			"start_frame": int64(start * 30), "end_frame": int64((start + 1) * 30), "label": "fall",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	annotations, err := user.getAnnotations(video.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations.Temporal) != 3 {
		t.Fatalf("expected 3 annotations, got %d", len(annotations.Temporal))
	}
	for i := 1; i < len(annotations.Temporal); i++ {
		if annotations.Temporal[i].StartTime < annotations.Temporal[i-1].StartTime {
			t.Fatalf("annotations not ordered by start time: %+v", annotations.Temporal)
		}
	}
}

func TestGetAnnotationsMissingVideo(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("carol")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.getAnnotations(99999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvalidTemporalAnnotationRejected(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("dave")
	if err != nil {
		t.Fatal(err)
	}
	video := setupVideo(t, user)

	invalid := []map[string]interface{}{
		// end before start
		{"video_id": video.Id, "start_time": 6.0, "end_time": 4.0, "start_frame": 120, "end_frame": 180, "label": "fall"},
		// zero length interval
		{"video_id": video.Id, "start_time": 5.0, "end_time": 5.0, "start_frame": 150, "end_frame": 150, "label": "fall"},
		// end frame before start frame
		{"video_id": video.Id, "start_time": 4.0, "end_time": 6.0, "start_frame": 180, "end_frame": 120, "label": "fall"},
		// missing label
		{"video_id": video.Id, "start_time": 4.0, "end_time": 6.0, "start_frame": 120, "end_frame": 180, "label": ""},
	}
	for i, body := range invalid {
		if _, err := user.saveTemporal(body); !errors.Is(err, ErrUnprocessable) {
			t.Fatalf("case %d: expected unprocessable, got %v", i, err)
		}
	}

	// A rejected annotation leaves nothing behind.
	annotations, err := user.getAnnotations(video.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations.Temporal) != 0 {
		t.Fatalf("rejected annotations must not be persisted: %+v", annotations)
	}

	if _, err := user.saveTemporal(map[string]interface{}{
		"video_id": int64(99999), "start_time": 4.0, "end_time": 6.0,
		"start_frame": 120, "end_frame": 180, "label": "fall",
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing video, got %v", err)
	}
}

func TestInvalidBboxAnnotationRejected(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("erin")
	if err != nil {
		t.Fatal(err)
	}
	video := setupVideo(t, user)

	invalid := []map[string]interface{}{
		{"video_id": video.Id, "frame_index": 10, "x": 0.1, "y": 0.1, "width": 0.0, "height": 0.4, "part_label": "head"},
		{"video_id": video.Id, "frame_index": 10, "x": 0.1, "y": 0.1, "width": 0.3, "height": -0.4, "part_label": "head"},
		{"video_id": video.Id, "frame_index": -1, "x": 0.1, "y": 0.1, "width": 0.3, "height": 0.4, "part_label": "head"},
		{"video_id": video.Id, "frame_index": 10, "x": 0.1, "y": 0.1, "width": 0.3, "height": 0.4, "part_label": ""},
	}
	for i, body := range invalid {
		if _, err := user.saveBbox(body); !errors.Is(err, ErrUnprocessable) {
			t.Fatalf("case %d: expected unprocessable, got %v", i, err)
		}
	}

	annotations, err := user.getAnnotations(video.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations.Bboxes) != 0 {
		t.Fatalf("rejected annotations must not be persisted: %+v", annotations)
	}
}

func TestDeleteAnnotation(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("frank")
	if err != nil {
		t.Fatal(err)
	}
	video := setupVideo(t, user)

	temporal, err := user.saveTemporal(map[string]interface{}{
		"video_id": video.Id, "start_time": 1.0, "end_time": 2.0,
		"start_frame": 30, "end_frame": 60, "label": "fall",
	})
	if err != nil {
		t.Fatal(err)
	}
	bbox, err := user.saveBbox(map[string]interface{}{
		"video_id": video.Id, "frame_index": 40,
		"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4, "part_label": "torso",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := user.deleteAnnotation(schema.TemporalAnnotationKind, temporal.Id); err != nil {
		t.Fatal(err)
	}
	if err := user.deleteAnnotation(schema.BboxAnnotationKind, bbox.Id); err != nil {
		t.Fatal(err)
	}

	annotations, err := user.getAnnotations(video.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations.Temporal) != 0 || len(annotations.Bboxes) != 0 {
		t.Fatalf("annotations should be gone after delete: %+v", annotations)
	}

	// Repeat delete reports the row as missing.
	if err := user.deleteAnnotation(schema.TemporalAnnotationKind, temporal.Id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on repeat delete, got %v", err)
	}

	if err := user.deleteAnnotation("polygon", 1); !errors.Is(err, ErrUnprocessable) {
		t.Fatalf("expected unprocessable for unknown annotation type, got %v", err)
	}
}
