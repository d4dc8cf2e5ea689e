package hwconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/sattrack/pass"
)

func TestSaveLoad(t *testing.T) {
	s := Store{Dir: t.TempDir()}
	want := Config{
		Name:      "yaesu",
		Host:      "rot.example.net",
		Port:      4533,
		AzType:    pass.AzType180,
		AzStopPos: 180,
		MinAz:     -180,
		MaxAz:     180,
		MaxEl:     90,
		CycleMS:   2500,
		Threshold: 2,
	}
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load("yaesu")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if got.Cycle() != 2500*time.Millisecond {
		t.Errorf("Cycle() = %v, want 2.5s", got.Cycle())
	}
	if got.Addr() != "rot.example.net:4533" {
		t.Errorf("Addr() = %q", got.Addr())
	}
}

func TestList(t *testing.T) {
	s := Store{Dir: t.TempDir()}
	for _, name := range []string{"b", "a"} {
		if err := s.Save(Default(name)); err != nil {
			t.Fatal(err)
		}
	}
	// Non-config files are ignored.
	if err := os.WriteFile(filepath.Join(s.Dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	s := Store{Dir: t.TempDir()}
	if _, err := s.Load("missing"); err == nil {
		t.Error("Load(missing) = nil error")
	}
	if err := os.WriteFile(filepath.Join(s.Dir, "bad.rot"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("bad"); err == nil {
		t.Error("Load(bad json) = nil error")
	}
	if err := s.Save(Config{}); err == nil {
		t.Error("Save(empty name) = nil error")
	}
}
