package server

import (
	"issueline/internal/domain"
	"issueline/internal/events"
)

// Request payloads

type CreateIssueRequest struct {
	Title          string         `json:"title" minLength:"1"`
	Description    string         `json:"description,omitempty"`
	Priority       *int           `json:"priority,omitempty" minimum:"0" maximum:"4"`
	IssueType      string         `json:"issue_type,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	ParentID       string         `json:"parent_id,omitempty"`
	DiscoveredFrom string         `json:"discovered_from,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type CloseIssueRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AddDependencyRequest struct {
	BlockedID string `json:"blocked_id" minLength:"1"`
	BlockerID string `json:"blocker_id" minLength:"1"`
}

// Response payloads

type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Sequence int64  `json:"sequence_no"`
}

type IssueListResponse struct {
	Issues []domain.Issue `json:"issues"`
	Count  int            `json:"count"`
}

type ReadyResponse struct {
	ReadyIssues []domain.Issue `json:"ready_issues"`
	Count       int            `json:"count"`
}

type BlockedResponse struct {
	BlockedIssues []domain.BlockedIssue `json:"blocked_issues"`
	Count         int                   `json:"count"`
}

type DependenciesResponse struct {
	Dependencies []domain.Issue `json:"dependencies"`
	Count        int            `json:"count"`
}

type DependentsResponse struct {
	Dependents []domain.Issue `json:"dependents"`
	Count      int            `json:"count"`
}

type EventListResponse struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

func issueList(issues []domain.Issue) []domain.Issue {
	if issues == nil {
		return []domain.Issue{}
	}
	return issues
}

func blockedList(entries []domain.BlockedIssue) []domain.BlockedIssue {
	if entries == nil {
		return []domain.BlockedIssue{}
	}
	return entries
}

func eventList(evts []events.Event) []events.Event {
	if evts == nil {
		return []events.Event{}
	}
	return evts
}
