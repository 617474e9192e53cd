package telegram

import "testing"

func TestKindOfMatchesKnownDialog(t *testing.T) {
	ps := &peerStore{dialogs: []dialogRef{
		{Kind: dialogKindChannel, ID: 100},
		{Kind: dialogKindUser, ID: 200},
	}}
	if got := ps.kindOf(100); got != dialogKindChannel {
		t.Errorf("kindOf(100) = %q, want channel", got)
	}
	if got := ps.kindOf(200); got != dialogKindUser {
		t.Errorf("kindOf(200) = %q, want user", got)
	}
	if got := ps.kindOf(999); got != "" {
		t.Errorf("kindOf(999) = %q, want empty for unknown dialog", got)
	}
}

func TestSetDialogsReplacesSnapshot(t *testing.T) {
	ps := &peerStore{}
	ps.setDialogs([]dialogRef{{Kind: dialogKindChat, ID: 1}})
	if got := ps.kindOf(1); got != dialogKindChat {
		t.Fatalf("expected dialog 1 to resolve as chat, got %q", got)
	}
}
