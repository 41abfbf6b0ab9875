package workflow

import (
	"fmt"

	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Err converts a denied result into an Unauthorized error.
func (r GuardResult) Err() error {
	if r.Allowed {
		return nil
	}
	return appErrors.Clone(appErrors.ErrUnauthorized, r.Reason)
}

var allowed = GuardResult{Allowed: true}

// RequireReviewer evaluates the role check done before any subject lookup.
// Rules:
// - ADMIN or CHAPTER_LEAD
func RequireReviewer(user models.ActingUser) GuardResult {
	if user.IsReviewer() {
		return allowed
	}
	return GuardResult{Reason: "reviewer role required"}
}

// CanManage evaluates whether a reviewer may mutate the subject.
// Rules:
// - ADMIN manages every subject
// - CHAPTER_LEAD manages subjects in their own chapter only
func CanManage(user models.ActingUser, subject Subject) GuardResult {
	if user.HasRole(models.RoleAdmin) {
		return allowed
	}
	if !user.HasRole(models.RoleChapterLead) {
		return GuardResult{Reason: "reviewer role required"}
	}
	if user.ChapterID == "" || user.ChapterID != subject.ChapterID() {
		return GuardResult{Reason: fmt.Sprintf("chapter lead cannot manage %s outside their chapter", subject.Ref().Key())}
	}
	return allowed
}

// CanActAsSubject evaluates self-service operations.
// Rules:
// - acting user must be the subject owner
func CanActAsSubject(user models.ActingUser, subject Subject) GuardResult {
	if user.ID != "" && user.ID == subject.OwnerID() {
		return allowed
	}
	return GuardResult{Reason: "only the interview subject may perform this action"}
}

// CanConfirm evaluates slot confirmation.
// Rules:
// - the subject confirms their own slot
// - a reviewer who can manage the subject may confirm on their behalf
func CanConfirm(user models.ActingUser, subject Subject) GuardResult {
	if self := CanActAsSubject(user, subject); self.Allowed {
		return self
	}
	return CanManage(user, subject)
}

// CanSetOutcome evaluates outcome recording.
// Rules:
// - WAIVE requires ADMIN
// - other outcomes require CanManage
func CanSetOutcome(user models.ActingUser, subject Subject, outcome models.GateOutcome) GuardResult {
	if outcome == models.OutcomeWaive && !user.HasRole(models.RoleAdmin) {
		return GuardResult{Reason: "only an admin may waive the interview"}
	}
	return CanManage(user, subject)
}

// EnsureOpen fails with AlreadyFinalized on a terminal subject.
func EnsureOpen(subject Subject) error {
	if subject.IsTerminal() {
		return appErrors.Clone(appErrors.ErrAlreadyFinalized, fmt.Sprintf("%s is already finalized", subject.Ref().Key()))
	}
	return nil
}
