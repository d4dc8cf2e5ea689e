package predict

import "testing"

func TestParseTLE(t *testing.T) {
	sats, err := ParseTLE([]string{
		"ISS (ZARYA)",
		issTLE1,
		issTLE2,
		"",
		issTLE1,
		issTLE2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sats) != 2 {
		t.Fatalf("parsed %d satellites, want 2", len(sats))
	}
	if sats[0].Name != "ISS (ZARYA)" || sats[0].CatNum != 25544 {
		t.Errorf("first satellite = %q/%d, want ISS (ZARYA)/25544", sats[0].Name, sats[0].CatNum)
	}
	// No name line: the catalog number stands in.
	if sats[1].Name != "25544" {
		t.Errorf("unnamed satellite = %q, want 25544", sats[1].Name)
	}
}

func TestParseTLEErrors(t *testing.T) {
	if _, err := ParseTLE([]string{"ISS", issTLE1}); err == nil {
		t.Error("missing line 2 accepted")
	}
	if _, err := ParseTLE([]string{"1 xxxxx", issTLE2}); err == nil {
		t.Error("bad catalog number accepted")
	}
}
