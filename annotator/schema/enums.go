package schema

import "fmt"

const (
	ProjectSetup     = "setup"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
	ProjectArchived  = "archived"
)

func CheckValidProjectStatus(status string) error {
	if status == ProjectSetup || status == ProjectActive || status == ProjectCompleted || status == ProjectArchived {
		return nil
	}
	return fmt.Errorf("invalid project status '%v'", status)
}

const (
	VideoPending    = "pending"
	VideoInProgress = "in_progress"
	VideoCompleted  = "completed"
	VideoFailed     = "failed"
)

func CheckValidVideoStatus(status string) error {
	if status == VideoPending || status == VideoInProgress || status == VideoCompleted || status == VideoFailed {
		return nil
	}
	return fmt.Errorf("invalid video status '%v'", status)
}

const (
	RoleAdmin     = "admin"
	RoleReviewer  = "reviewer"
	RoleAnnotator = "annotator"
)

func CheckValidRole(role string) error {
	if role == RoleAdmin || role == RoleReviewer || role == RoleAnnotator {
		return nil
	}
	return fmt.Errorf("invalid role %v, must be 'admin', 'reviewer', or 'annotator'", role)
}

const (
	TemporalAnnotationKind = "temporal"
	BboxAnnotationKind     = "bbox"
)

func CheckValidAnnotationKind(kind string) error {
	if kind == TemporalAnnotationKind || kind == BboxAnnotationKind {
		return nil
	}
	return fmt.Errorf("invalid annotation type %v, must be 'temporal' or 'bbox'", kind)
}
