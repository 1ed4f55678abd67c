package keys

// Objectives:
// - generated keys parse back into their segments
// - reaction fingerprints depend on identity, not timestamps
// - identifier validation rejects key-separator characters

import (
	"testing"
	"time"

	"framesync/pkg/models"
)

func TestMessageKeyRoundtrip(t *testing.T) {
	k := GenMessageKey(models.AnchorThread, "t1", "m1")
	anchor, anchorID, interactionID, err := ParseMessageKey(k)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if anchor != models.AnchorThread || anchorID != "t1" || interactionID != "m1" {
		t.Fatalf("roundtrip mismatch: %s %s %s", anchor, anchorID, interactionID)
	}
	if _, _, _, err := ParseMessageKey("not:a:message:key"); err == nil {
		t.Fatal("malformed key should fail to parse")
	}
	if _, _, _, err := ParseMessageKey("i:bogus:t1:m:m1"); err == nil {
		t.Fatal("unknown anchor should fail to parse")
	}
}

func TestGraphEdgeKeyRoundtrip(t *testing.T) {
	k := GenGraphEdgeKey("u1", "a1")
	uid, gid, err := ParseGraphEdgeKey(k)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if uid != "u1" || gid != "a1" {
		t.Fatalf("roundtrip mismatch: %s %s", uid, gid)
	}
}

func TestDownloadKeyRoundtrip(t *testing.T) {
	k := GenDownloadKey("a1", "u1")
	gid, uid, err := ParseDownloadKey(k)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if gid != "a1" || uid != "u1" {
		t.Fatalf("roundtrip mismatch: %s %s", gid, uid)
	}
}

func TestE2EEPrefixMatchesKey(t *testing.T) {
	k := GenE2EEKey(models.AnchorGroup, "g1")
	gid, err := TrimPrefix(k, E2EEPrefix(models.AnchorGroup))
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if gid != "g1" {
		t.Fatalf("expected g1, got %q", gid)
	}
	if _, err := TrimPrefix(k, E2EEPrefix(models.AnchorThread)); err == nil {
		t.Fatal("group key must not match the thread prefix")
	}
}

func TestReactionFingerprint(t *testing.T) {
	r := models.Reaction{
		SenderUserIdentifier:   "u1",
		InReplyToInteractionID: "m1",
		ReactionType:           "like",
		AddedAt:                time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	later := r
	later.AddedAt = later.AddedAt.Add(time.Hour)
	if ReactionFingerprint(r) != ReactionFingerprint(later) {
		t.Fatal("fingerprint must ignore the timestamp")
	}
	other := r
	other.ReactionType = "love"
	if ReactionFingerprint(r) == ReactionFingerprint(other) {
		t.Fatal("different types must fingerprint differently")
	}
}

func TestValidateID(t *testing.T) {
	for _, ok := range []string{"a1", "user_2", "UUID-1234.v2"} {
		if err := ValidateID(ok); err != nil {
			t.Fatalf("%q should validate: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "has:colon", "has space", string(make([]byte, 300))} {
		if err := ValidateID(bad); err == nil {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}
