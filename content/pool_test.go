package content

import (
	"errors"
	"testing"
)

var poolCategories = []Category{"politics", "sport"}

func TestNewsPoolFill(t *testing.T) {
	p := NewNewsPool(poolCategories)

	if err := p.Fill([]*News{{ID: 1, Category: "politics"}}, false); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if err := p.Add(&News{ID: 2, Category: "sport"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}

	err := p.Fill([]*News{{ID: 3, Category: "weather"}}, true)
	if !errors.Is(err, ErrUnsupportedCategory) {
		t.Errorf("Fill() error = %v, want ErrUnsupportedCategory", err)
	}
	if p.Len() != 2 {
		t.Errorf("rejected fill mutated the pool: Len() = %d", p.Len())
	}

	// Non-append fill replaces wholesale.
	if err := p.Fill([]*News{{ID: 4, Category: "sport"}}, false); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if p.Len() != 1 || p.Items()[0].ID != 4 {
		t.Errorf("replace fill left %d items", p.Len())
	}
}

func TestNewsPoolRemove(t *testing.T) {
	p := NewNewsPool(poolCategories)
	items := []*News{
		{ID: 1, Category: "politics"},
		{ID: 2, Category: "sport"},
		{ID: 3, Category: "sport"},
	}
	if err := p.Fill(items, false); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	p.Remove([]*News{items[0], items[2]})
	if p.Len() != 1 || p.Items()[0].ID != 2 {
		t.Errorf("Remove() left %d items, first = %v", p.Len(), p.Items())
	}
}

func TestAdsPoolBuckets(t *testing.T) {
	p := NewAdsPool(poolCategories)
	items := []*Ad{
		{ID: 1, Category: "politics"},
		{ID: 2, Category: "politics", ExcludeCompetitors: true},
		{ID: 3, Category: "politics"},
		{ID: 4, Category: "sport", ExcludeCompetitors: true},
	}
	if err := p.Fill(items, false); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	if got := p.Bucket("politics", false); len(got) != 2 {
		t.Errorf("plain politics bucket has %d ads, want 2", len(got))
	}
	if got := p.Bucket("politics", true); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("excluding politics bucket = %v, want [2]", got)
	}
	if got := p.Bucket("sport", true); len(got) != 1 {
		t.Errorf("excluding sport bucket has %d ads, want 1", len(got))
	}

	p.Remove([]*Ad{items[1], items[3]})
	if got := p.Bucket("politics", true); len(got) != 0 {
		t.Errorf("excluding politics bucket not emptied: %v", got)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d after removal, want 2", p.Len())
	}
}

func TestUserStateStaging(t *testing.T) {
	u := NewUserState()

	u.NotePendingProminence(7, 0.8)
	if got := u.ObservedProminence(7); got != 0 {
		t.Errorf("pending exposure visible: ObservedProminence() = %v", got)
	}
	u.CommitProminence(7)
	if got := u.ObservedProminence(7); got != 0.8 {
		t.Errorf("ObservedProminence() = %v, want 0.8", got)
	}

	u.NotePendingClick(7)
	if got := u.ClickCount(7); got != 0 {
		t.Errorf("staged click visible: ClickCount() = %d", got)
	}
	u.CommitClicks(7)
	if got := u.ClickCount(7); got != 1 {
		t.Errorf("ClickCount() = %d, want 1", got)
	}

	u.Reset()
	if u.ObservedProminence(7) != 0 || u.ClickCount(7) != 0 {
		t.Error("Reset() kept history")
	}
}
