package pathmap

import (
	"crypto/rand"
	"path/filepath"
	"strings"
	"testing"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/metaspec"
	"csyncgo/internal/secret"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func testSpec(t *testing.T, outDir string, spreadDepth int) *metaspec.SyncerSpec {
	t.Helper()
	return &metaspec.SyncerSpec{
		SpreadDepth: spreadDepth,
		SaltLen:     64,
		InitSalt:    randomBytes(t, 64),
		OutDir:      outDir,
		Source:      "/src",
	}
}

func testKey(t *testing.T) secret.DerivedKey {
	t.Helper()
	return secret.NewDerivedKey(randomBytes(t, 64))
}

func TestForwardInverseRoundTrip(t *testing.T) {
	root := "/home/user/project"
	outDir := "/var/backup"
	spec := testSpec(t, outDir, 6)
	key := testKey(t)

	for _, tc := range []struct {
		rel  string
		kind EntryKind
	}{
		{"README.md", KindFile},
		{"src/main.go", KindFile},
		{"src/internal/deep/nested/file.txt", KindFile},
		{"src", KindDir},
		{"src/internal", KindDir},
	} {
		srcPath := filepath.Join(root, tc.rel)
		cipherPath, err := Forward(spec, key, root, srcPath, tc.kind)
		if err != nil {
			t.Fatalf("Forward(%q): %v", tc.rel, err)
		}
		if !strings.HasPrefix(cipherPath, outDir) {
			t.Fatalf("cipherPath %q should be under outDir %q", cipherPath, outDir)
		}
		if !strings.HasSuffix(cipherPath, ".csync") {
			t.Fatalf("cipherPath %q should end in .csync", cipherPath)
		}

		gotRel, gotKind, err := Inverse(spec, key, outDir, cipherPath)
		if err != nil {
			t.Fatalf("Inverse(%q): %v", cipherPath, err)
		}
		if gotRel != filepath.FromSlash(tc.rel) {
			t.Fatalf("Inverse rel = %q, want %q", gotRel, tc.rel)
		}
		if gotKind != tc.kind {
			t.Fatalf("Inverse kind = %v, want %v", gotKind, tc.kind)
		}
	}
}

func TestForwardIsDeterministic(t *testing.T) {
	root := "/home/user/project"
	outDir := "/var/backup"
	spec := testSpec(t, outDir, 8)
	key := testKey(t)

	srcPath := filepath.Join(root, "a/b/c.txt")
	first, err := Forward(spec, key, root, srcPath, KindFile)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	second, err := Forward(spec, key, root, srcPath, KindFile)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if first != second {
		t.Fatalf("Forward is not deterministic: %q != %q", first, second)
	}
}

func TestForwardDistinctPathsDoNotCollide(t *testing.T) {
	root := "/home/user/project"
	outDir := "/var/backup"
	spec := testSpec(t, outDir, 8)
	key := testKey(t)

	rels := []string{"a", "b", "a/b", "a/c", "aa", "a/b/c", "very/long/nested/path/to/a/file.go"}
	seen := make(map[string]string, len(rels))
	for _, rel := range rels {
		srcPath := filepath.Join(root, rel)
		cipherPath, err := Forward(spec, key, root, srcPath, KindFile)
		if err != nil {
			t.Fatalf("Forward(%q): %v", rel, err)
		}
		if prior, ok := seen[cipherPath]; ok {
			t.Fatalf("collision: %q and %q both map to %q", rel, prior, cipherPath)
		}
		seen[cipherPath] = rel
	}
}

func TestForwardDifferentKindsDoNotCollide(t *testing.T) {
	root := "/home/user/project"
	outDir := "/var/backup"
	spec := testSpec(t, outDir, 8)
	key := testKey(t)

	srcPath := filepath.Join(root, "ambiguous")
	asFile, err := Forward(spec, key, root, srcPath, KindFile)
	if err != nil {
		t.Fatalf("Forward(file): %v", err)
	}
	asDir, err := Forward(spec, key, root, srcPath, KindDir)
	if err != nil {
		t.Fatalf("Forward(dir): %v", err)
	}
	if asFile == asDir {
		t.Fatal("same path with different kinds should not collide")
	}
}

func TestForwardSpreadHasExactlySpreadDepthComponents(t *testing.T) {
	root := "/home/user/project"
	outDir := "/var/backup"
	const spreadDepth = 5
	spec := testSpec(t, outDir, spreadDepth)
	key := testKey(t)

	cipherPath, err := Forward(spec, key, root, filepath.Join(root, "x"), KindFile)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	rel, err := filepath.Rel(outDir, cipherPath)
	if err != nil {
		t.Fatalf("filepath.Rel: %v", err)
	}
	comps := strings.Split(filepath.ToSlash(rel), "/")
	// spreadDepth single-char components, plus at least one chunk component.
	if len(comps) < spreadDepth+1 {
		t.Fatalf("expected at least %d components, got %d (%v)", spreadDepth+1, len(comps), comps)
	}
	for i := 0; i < spreadDepth; i++ {
		if len(comps[i]) != 1 {
			t.Fatalf("spread component %d = %q, want length 1", i, comps[i])
		}
	}
}

func TestForwardRejectsInvalidUtf8Path(t *testing.T) {
	root := "/home/user/project"
	outDir := "/var/backup"
	spec := testSpec(t, outDir, 4)
	key := testKey(t)

	srcPath := root + "/bad-\xff\xfe-name"
	_, err := Forward(spec, key, root, srcPath, KindFile)
	if err == nil {
		t.Fatal("expected an error for a non-UTF-8 path")
	}
	if csyncerr.KindOf(err) != csyncerr.KindPathContainsInvalidUtf8Bytes {
		t.Fatalf("kind = %v, want PathContainsInvalidUtf8Bytes", csyncerr.KindOf(err))
	}
}

func TestInverseRejectsTamperedCiphertext(t *testing.T) {
	root := "/home/user/project"
	outDir := "/var/backup"
	spec := testSpec(t, outDir, 4)
	key := testKey(t)

	cipherPath, err := Forward(spec, key, root, filepath.Join(root, "file.txt"), KindFile)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	tampered := cipherPath[:len(cipherPath)-len(".csync")-1] + "Z.csync"

	if _, _, err := Inverse(spec, key, outDir, tampered); err == nil {
		t.Fatal("expected an error decoding a tampered ciphertext path")
	}
}
