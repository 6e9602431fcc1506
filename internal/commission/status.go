package commission

import (
	"errors"
	"fmt"

	"roofpro-hub/internal/permissions"
)

var ErrIllegalTransition = errors.New("illegal status transition")

type DocumentStatus string

const (
	DocumentDraft     DocumentStatus = "draft"
	DocumentSubmitted DocumentStatus = "submitted"
	DocumentApproved  DocumentStatus = "approved"
	DocumentRejected  DocumentStatus = "rejected"
)

type SubmissionStatus string

const (
	SubmissionPendingReview      SubmissionStatus = "pending_review"
	SubmissionApproved           SubmissionStatus = "approved"
	SubmissionAccountingApproved SubmissionStatus = "accounting_approved"
	SubmissionPaid               SubmissionStatus = "paid"
	SubmissionRejected           SubmissionStatus = "rejected"
	SubmissionDenied             SubmissionStatus = "denied"
)

type documentEdge struct{ from, to DocumentStatus }

type submissionEdge struct{ from, to SubmissionStatus }

// documentTransitions maps each legal edge to the permission it needs. An
// empty permission means the document owner may take the edge.
var documentTransitions = map[documentEdge]string{
	{DocumentDraft, DocumentSubmitted}:    "",
	{DocumentRejected, DocumentSubmitted}: "",
	{DocumentRejected, DocumentDraft}:     "",
	{DocumentSubmitted, DocumentApproved}: permissions.CommissionsApprove,
	{DocumentSubmitted, DocumentRejected}: permissions.CommissionsApprove,
}

var submissionTransitions = map[submissionEdge]string{
	{SubmissionPendingReview, SubmissionApproved}:      permissions.CommissionsApprove,
	{SubmissionPendingReview, SubmissionRejected}:      permissions.CommissionsApprove,
	{SubmissionPendingReview, SubmissionDenied}:        permissions.CommissionsApprove,
	{SubmissionApproved, SubmissionAccountingApproved}: permissions.CommissionsAccountingApprove,
	{SubmissionApproved, SubmissionRejected}:           permissions.CommissionsAccountingApprove,
	{SubmissionApproved, SubmissionDenied}:             permissions.CommissionsAccountingApprove,
	{SubmissionAccountingApproved, SubmissionPaid}:     permissions.CommissionsPay,
	{SubmissionAccountingApproved, SubmissionRejected}: permissions.CommissionsAccountingApprove,
	{SubmissionRejected, SubmissionPendingReview}:      "",
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentDraft, DocumentSubmitted, DocumentApproved, DocumentRejected:
		return true
	}
	return false
}

// Editable reports whether document inputs may still change.
func (s DocumentStatus) Editable() bool {
	return s == DocumentDraft || s == DocumentRejected
}

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPendingReview, SubmissionApproved, SubmissionAccountingApproved,
		SubmissionPaid, SubmissionRejected, SubmissionDenied:
		return true
	}
	return false
}

func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionPaid || s == SubmissionDenied
}

// DocumentTransition returns the permission needed to move a document from
// one status to another.
func DocumentTransition(from, to DocumentStatus) (string, error) {
	perm, ok := documentTransitions[documentEdge{from, to}]
	if !ok {
		return "", fmt.Errorf("document %s -> %s: %w", from, to, ErrIllegalTransition)
	}
	return perm, nil
}

// SubmissionTransition returns the permission needed to move a submission
// from one status to another.
func SubmissionTransition(from, to SubmissionStatus) (string, error) {
	perm, ok := submissionTransitions[submissionEdge{from, to}]
	if !ok {
		return "", fmt.Errorf("submission %s -> %s: %w", from, to, ErrIllegalTransition)
	}
	return perm, nil
}

// NextSubmissionStatuses lists the statuses reachable from s in one step.
func NextSubmissionStatuses(s SubmissionStatus) []SubmissionStatus {
	var out []SubmissionStatus
	for _, to := range []SubmissionStatus{
		SubmissionPendingReview, SubmissionApproved, SubmissionAccountingApproved,
		SubmissionPaid, SubmissionRejected, SubmissionDenied,
	} {
		if _, ok := submissionTransitions[submissionEdge{s, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}
