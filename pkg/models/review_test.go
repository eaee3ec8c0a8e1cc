package models

import "testing"

func TestReviewActionType_RequiresComment(t *testing.T) {
	for _, tt := range []struct {
		action ReviewActionType
		want   bool
	}{
		{ReviewActionApprove, false},
		{ReviewActionDeny, false},
		{ReviewActionRequestInfo, true},
		{ReviewActionOverride, false},
	} {
		if got := tt.action.RequiresComment(); got != tt.want {
			t.Errorf("RequiresComment(%s) = %v, want %v", tt.action, got, tt.want)
		}
	}
}

func TestLatestVerdict(t *testing.T) {
	tests := []struct {
		name    string
		actions []*ReviewAction
		want    ReviewActionType
	}{
		{"empty", nil, ""},
		{"single approve", []*ReviewAction{{Action: ReviewActionApprove}}, ReviewActionApprove},
		{"approve then deny", []*ReviewAction{{Action: ReviewActionApprove}, {Action: ReviewActionDeny}}, ReviewActionDeny},
		{"request_info ignored", []*ReviewAction{{Action: ReviewActionDeny}, {Action: ReviewActionRequestInfo}}, ReviewActionDeny},
		{"override is not a verdict", []*ReviewAction{{Action: ReviewActionApprove}, {Action: ReviewActionOverride}}, ReviewActionApprove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LatestVerdict(tt.actions); got != tt.want {
				t.Errorf("LatestVerdict() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLatestComment(t *testing.T) {
	actions := []*ReviewAction{
		{Action: ReviewActionRequestInfo, Comment: "please attach syllabus"},
		{Action: ReviewActionApprove, Comment: "   "},
		{Action: ReviewActionRequestInfo, Comment: "also need the lab schedule"},
		{Action: ReviewActionDeny, Comment: ""},
	}
	if got := LatestComment(actions); got != "also need the lab schedule" {
		t.Errorf("LatestComment() = %q", got)
	}
	if got := LatestComment(nil); got != "" {
		t.Errorf("LatestComment(nil) = %q, want empty", got)
	}
}

func TestHasComment(t *testing.T) {
	if (&ReviewAction{Comment: " \t\n"}).HasComment() {
		t.Error("whitespace-only comment should not count")
	}
	if !(&ReviewAction{Comment: "ok"}).HasComment() {
		t.Error("non-blank comment should count")
	}
}
