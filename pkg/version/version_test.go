package version

import "testing"

func TestBuildMetadataDefaults(t *testing.T) {
	if Version == "" {
		t.Error("Version must have a default")
	}
	if BuildTime == "" {
		t.Error("BuildTime must have a default")
	}
	switch {
	case GitCommit == "":
		t.Error("GitCommit must have a default")
	case GitCommit != "unknown" && len(GitCommit) < 7:
		t.Errorf("GitCommit %q is neither 'unknown' nor a plausible hash", GitCommit)
	}
}
