package sqlite

import (
	"context"
	"errors"
	"testing"

	"mediabot/internal/core/domain"
)

func TestRegisterAndPreference(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.Register(ctx, domain.User{PlatformID: "100", Username: "bob", FirstName: "Bob", LanguageCode: "en"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if u.ID == 0 || u.PreferredKind != "" {
		t.Errorf("registered user = %+v", u)
	}

	if err := s.SetPreferredKind(ctx, "100", domain.KindAudio); err != nil {
		t.Fatal(err)
	}

	// Re-registering refreshes the profile but keeps the preference.
	u2, err := s.Register(ctx, domain.User{PlatformID: "100", Username: "bobby"})
	if err != nil {
		t.Fatal(err)
	}
	if u2.ID != u.ID {
		t.Errorf("id changed from %d to %d", u.ID, u2.ID)
	}
	if u2.Username != "bobby" || u2.PreferredKind != domain.KindAudio {
		t.Errorf("re-registered user = %+v", u2)
	}

	if err := s.SetPreferredKind(ctx, "100", ""); err != nil {
		t.Fatal(err)
	}
	u3, _ := s.GetUser(ctx, "100")
	if u3.PreferredKind != "" {
		t.Errorf("preference not cleared: %q", u3.PreferredKind)
	}
}

func TestUnknownUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser() error = %v", err)
	}
	if err := s.SetPreferredKind(ctx, "nobody", domain.KindVideo); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetPreferredKind() error = %v", err)
	}
	if _, err := s.UserStats(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UserStats() error = %v", err)
	}
}

func TestUserStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	add := func(kind domain.Kind, f domain.Finalization) {
		rec, err := s.Open(ctx, domain.NewRequest("https://x.test/1", kind, "", "5"), domain.MediaMetadata{})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Finalize(ctx, rec, f); err != nil {
			t.Fatal(err)
		}
	}
	add(domain.KindVideo, domain.Finalization{Outcome: domain.OutcomeSuccess, FileSizeBytes: 10})
	add(domain.KindVideo, domain.Finalization{Outcome: domain.OutcomeFailure, ErrorMessage: "x"})
	add(domain.KindAudio, domain.Finalization{Outcome: domain.OutcomeSuccess, FileSizeBytes: 5})
	add(domain.KindAudio, domain.Finalization{Outcome: domain.OutcomeSuccess, FileSizeBytes: 5})

	st, err := s.UserStats(ctx, "5")
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 4 || st.Successful != 3 || st.Video != 2 || st.Audio != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.SuccessRate() != 75 {
		t.Errorf("success rate = %v", st.SuccessRate())
	}
	if st.MemberSince.IsZero() {
		t.Error("member since not set")
	}
}
