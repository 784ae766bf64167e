package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifest_EmptyPath(t *testing.T) {
	manifest, err := LoadManifest("")
	if err != nil {
		t.Fatalf("empty path should yield an empty manifest: %v", err)
	}
	if len(manifest.Probes) != 0 || len(manifest.Services) != 0 {
		t.Fatalf("expected empty manifest, got %+v", manifest)
	}
}

func TestLoadManifest_Valid(t *testing.T) {
	path := writeManifest(t, `
services:
  - name: api
    criticality: required
    depends_on: [database]
probes:
  - name: database
    url: http://localhost:5432/health
    criticality: required
  - name: api
    url: http://localhost:8000/health
`)

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(manifest.Probes) != 2 {
		t.Fatalf("expected 2 probes, got %d", len(manifest.Probes))
	}
	if manifest.Services[0].Criticality != "required" {
		t.Fatalf("unexpected override %+v", manifest.Services[0])
	}
	if manifest.Probes[0].URL != "http://localhost:5432/health" {
		t.Fatalf("unexpected probe %+v", manifest.Probes[0])
	}
}

func TestLoadManifest_MissingFile(t *testing.T) {
	if _, err := LoadManifest("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestLoadManifest_InvalidYAML(t *testing.T) {
	path := writeManifest(t, "probes: [\n")
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadManifest_Validation(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		wantPart string
	}{
		{
			name:     "probe missing url",
			content:  "probes:\n  - name: api\n",
			wantPart: "url is required",
		},
		{
			name:     "probe url without scheme",
			content:  "probes:\n  - name: api\n    url: localhost/health\n",
			wantPart: "scheme and host",
		},
		{
			name:     "duplicate probe name",
			content:  "probes:\n  - name: api\n    url: http://a/h\n  - name: api\n    url: http://b/h\n",
			wantPart: "duplicate name",
		},
		{
			name:     "bad criticality",
			content:  "probes:\n  - name: api\n    url: http://a/h\n    criticality: vital\n",
			wantPart: "criticality",
		},
		{
			name:     "override without name",
			content:  "services:\n  - criticality: required\n",
			wantPart: "name is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeManifest(t, tc.content)
			_, err := LoadManifest(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantPart) {
				t.Fatalf("expected error containing %q, got %v", tc.wantPart, err)
			}
		})
	}
}

func TestLoadManifest_OverrideMayTargetProbe(t *testing.T) {
	path := writeManifest(t, `
services:
  - name: database
    criticality: optional
probes:
  - name: database
    url: http://localhost:5432/health
`)
	if _, err := LoadManifest(path); err != nil {
		t.Fatalf("override naming a probe must be valid: %v", err)
	}
}
