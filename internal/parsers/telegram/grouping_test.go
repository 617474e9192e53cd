package telegram

import (
	"strings"
	"testing"
	"time"
)

func at(sec int) time.Time { return time.Unix(int64(sec), 0).UTC() }

func TestGroupMessagesSplitsOnGapOrText(t *testing.T) {
	msgs := []RawMessage{
		{ID: 1, Date: at(0), HasMedia: true},
		{ID: 2, Date: at(1), HasMedia: true},
		{ID: 3, Date: at(2), Text: "hello"},
		{ID: 4, Date: at(3), HasMedia: true},
		{ID: 5, Date: at(200), HasMedia: true},
	}
	groups := GroupMessages(msgs)

	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d: %+v", len(groups), groups)
	}
	if len(groups[0]) != 2 {
		t.Errorf("expected first group to have 2 media-only messages, got %d", len(groups[0]))
	}
	if len(groups[1]) != 2 {
		t.Errorf("expected second group (text + following media) to have 2 messages, got %d", len(groups[1]))
	}
	if len(groups[2]) != 1 {
		t.Errorf("expected third group (after >1min gap) to have 1 message, got %d", len(groups[2]))
	}
}

func TestProcessGroupSplitsLongText(t *testing.T) {
	group := []RawMessage{
		{ID: 1, Date: at(0), Text: strings.Repeat("a", 900)},
	}
	posts := ProcessGroup(group, "en", GroupingOptions{MaxStatusLength: 400, MaxMediaPerPost: 4})
	if len(posts) < 2 {
		t.Fatalf("expected text to split into multiple posts, got %d", len(posts))
	}
	groupID := posts[0].Group
	for _, p := range posts {
		if p.Group != groupID {
			t.Errorf("expected all posts to share group id %q, got %q", groupID, p.Group)
		}
		if p.Language != "en" {
			t.Errorf("expected language propagated, got %q", p.Language)
		}
	}
}

func TestProcessGroupSplitsOnMediaCount(t *testing.T) {
	group := []RawMessage{
		{ID: 1, Date: at(0), HasMedia: true, MediaRef: "m1"},
		{ID: 2, Date: at(1), HasMedia: true, MediaRef: "m2"},
		{ID: 3, Date: at(2), HasMedia: true, MediaRef: "m3"},
		{ID: 4, Date: at(3), HasMedia: true, MediaRef: "m4"},
		{ID: 5, Date: at(4), HasMedia: true, MediaRef: "m5"},
	}
	posts := ProcessGroup(group, "en", GroupingOptions{MaxStatusLength: 400, MaxMediaPerPost: 4})
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts for 5 media items capped at 4/post, got %d", len(posts))
	}
	if len(posts[0].Media) != 4 || len(posts[1].Media) != 1 {
		t.Errorf("unexpected media distribution: %d/%d", len(posts[0].Media), len(posts[1].Media))
	}
}

func TestProcessGroupSingleShortMessageIsOnePost(t *testing.T) {
	group := []RawMessage{{ID: 1, Date: at(0), Text: "short"}}
	posts := ProcessGroup(group, "en", GroupingOptions{})
	if len(posts) != 1 {
		t.Fatalf("expected exactly 1 post, got %d", len(posts))
	}
	if posts[0].RawContent["body"] != "short" {
		t.Errorf("expected untouched text, got %q", posts[0].RawContent["body"])
	}
}
