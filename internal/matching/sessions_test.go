package matching

import (
	"testing"
)

func TestNewMatchSession(t *testing.T) {
	a := testRequest("alice", DifficultyMedium, []string{"Trees", "Graphs"}, 0)
	a.Language = "Go"
	b := testRequest("bob", DifficultyMedium, []string{"Graphs"}, 0)
	b.Language = "Go"

	sess := NewMatchSession(a, b)
	if sess.MatchID == "" {
		t.Error("session needs a match ID")
	}
	if sess.Difficulty != DifficultyMedium || sess.Language != "Go" {
		t.Errorf("criteria wrong: %+v", sess)
	}
	if len(sess.SharedCategories) != 1 || sess.SharedCategories[0] != "Graphs" {
		t.Errorf("expected shared categories [Graphs], got %v", sess.SharedCategories)
	}

	if sess.Partner("alice") != "bob" || sess.Partner("bob") != "alice" {
		t.Error("Partner should map each participant to the other")
	}
	if sess.Partner("mallory") != "" {
		t.Error("Partner for a non-participant should be empty")
	}
}

func TestNewMatchSession_LanguageFallsBackToPartner(t *testing.T) {
	a := testRequest("alice", DifficultyEasy, []string{"Arrays"}, 0)
	b := testRequest("bob", DifficultyEasy, []string{"Arrays"}, 0)
	b.Language = "Python"

	if sess := NewMatchSession(a, b); sess.Language != "Python" {
		t.Errorf("expected the concrete language to win, got %q", sess.Language)
	}
}

func TestSessionRegistry(t *testing.T) {
	reg := NewSessionRegistry()

	a := testRequest("alice", DifficultyEasy, []string{"Arrays"}, 0)
	b := testRequest("bob", DifficultyEasy, []string{"Arrays"}, 0)
	sess := NewMatchSession(a, b)
	reg.Add(sess)

	if reg.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", reg.Len())
	}
	if reg.Get(sess.MatchID) != sess {
		t.Error("lookup by match ID failed")
	}
	if reg.ForUser("alice") != sess || reg.ForUser("bob") != sess {
		t.Error("both participants should resolve to the session")
	}
	if reg.ForUser("carol") != nil {
		t.Error("unmatched user should resolve to nil")
	}

	if !reg.Remove(sess.MatchID) {
		t.Fatal("remove of a live session should report true")
	}
	if reg.Remove(sess.MatchID) {
		t.Error("second remove should report false")
	}
	if reg.Len() != 0 || reg.ForUser("alice") != nil {
		t.Error("removal should drop all indexes")
	}
}
