package run

import (
	"testing"

	"perchmp/domain/core"
)

func manifest(seed int64, bio core.Hash) *RunManifest {
	return NewRunManifest(core.NewRunID(),
		Input{Path: "fish.csv", Hash: bio},
		Input{Path: "pop.csv", Hash: "pop-hash"},
		"default", core.Hash("plan-hash"), seed, 250, 0.05)
}

func TestFingerprint_Deterministic(t *testing.T) {
	m1 := manifest(42, "bio-hash")
	m2 := manifest(42, "bio-hash")
	m1.Seal([]string{"H"})
	m2.Seal([]string{"H"})

	if m1.RunID == m2.RunID {
		t.Fatalf("run IDs should differ")
	}
	if m1.Fingerprint != m2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", m1.Fingerprint, m2.Fingerprint)
	}
	if m1.Fingerprint.IsEmpty() {
		t.Errorf("Fingerprint should be set after Seal")
	}
}

func TestFingerprint_Sensitivity(t *testing.T) {
	base := manifest(42, "bio-hash")
	base.Seal([]string{"H"})

	tests := map[string]*RunManifest{
		"seed":    manifest(43, "bio-hash"),
		"input":   manifest(42, "other-hash"),
		"control": manifest(42, "bio-hash"),
	}
	tests["seed"].Seal([]string{"H"})
	tests["input"].Seal([]string{"H"})
	tests["control"].Seal([]string{"C"})

	for name, m := range tests {
		if m.Fingerprint == base.Fingerprint {
			t.Errorf("%s change should change the fingerprint", name)
		}
	}
}
