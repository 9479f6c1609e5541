package transform

import (
	"strings"
	"testing"
	"time"
)

type staff struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	FullName  string    `json:"fullName"`
	Visits    int       `json:"visits"`
	Busy      bool      `json:"busy"`
	CreatedAt time.Time `json:"createdAt"`
}

func TestComputedSetsFields(t *testing.T) {
	c, err := NewComputed[staff](map[string]string{
		"fullName": `record.firstName + " " + record.lastName`,
		"busy":     `record.visits > 3`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	out := c.Apply(staff{ID: "s1", FirstName: "Ada", LastName: "Okafor", Visits: 5, CreatedAt: created})

	if out.FullName != "Ada Okafor" {
		t.Errorf("expected fullName 'Ada Okafor', got %q", out.FullName)
	}
	if !out.Busy {
		t.Error("expected busy to be computed as true")
	}
	if !out.CreatedAt.Equal(created) {
		t.Errorf("createdAt lost in round trip: %v", out.CreatedAt)
	}
}

func TestComputedLaterFieldSeesEarlier(t *testing.T) {
	c := MustComputed[staff](map[string]string{
		"fullName": `record.firstName`,
		"lastName": `upper(record.fullName)`,
	})
	out := c.Apply(staff{FirstName: "ada"})
	if out.LastName != "ADA" {
		t.Errorf("expected lastName computed from fullName, got %q", out.LastName)
	}
}

func TestComputedCompileError(t *testing.T) {
	_, err := NewComputed[staff](map[string]string{"fullName": `record.firstName +`})
	if err == nil || !strings.Contains(err.Error(), "fullName") {
		t.Fatalf("expected compile error naming the field, got %v", err)
	}
}

func TestComputedRuntimeErrorKeepsInput(t *testing.T) {
	c := MustComputed[staff](map[string]string{"visits": `record.firstName / 2`})
	in := staff{ID: "s1", FirstName: "Ada", Visits: 2}
	if out := c.Apply(in); out != in {
		t.Errorf("expected input unchanged, got %+v", out)
	}
}

func TestChainAndApply(t *testing.T) {
	upper := func(s staff) staff { s.FirstName = strings.ToUpper(s.FirstName); return s }
	exclaim := func(s staff) staff { s.FirstName += "!"; return s }
	fn := Chain[staff](upper, nil, exclaim)

	items := Apply([]staff{{FirstName: "ada"}, {FirstName: "bo"}}, fn)
	if items[0].FirstName != "ADA!" || items[1].FirstName != "BO!" {
		t.Errorf("unexpected chain result: %+v", items)
	}
}

func TestApplyRecoversFromPanics(t *testing.T) {
	boom := func(s staff) staff {
		if s.ID == "bad" {
			panic("boom")
		}
		s.Busy = true
		return s
	}
	items := Apply([]staff{{ID: "ok"}, {ID: "bad"}}, boom)
	if !items[0].Busy {
		t.Error("expected first item transformed")
	}
	if items[1].Busy || items[1].ID != "bad" {
		t.Errorf("expected panicking item unchanged, got %+v", items[1])
	}
}

func TestApplyNilFunc(t *testing.T) {
	in := []staff{{ID: "a"}}
	if out := Apply(in, nil); len(out) != 1 || out[0].ID != "a" {
		t.Errorf("expected passthrough, got %+v", out)
	}
}
