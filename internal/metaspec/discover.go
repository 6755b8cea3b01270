package metaspec

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/kdf"
	"csyncgo/internal/secret"
)

// DiscoverSyncerSpec walks outDir depth-first looking for the first .csync
// file whose header parses and whose ActionSpec rehash verifies against the
// derived key produced from initial via that header's own KeyDerivSpec.
// Adopting that SyncerSpec is the only legal way to recover a run's
// parameters on resume or decrypt.
func DiscoverSyncerSpec(outDir string, initial secret.InitialKey) (*SyncerSpec, secret.DerivedKey, error) {
	var candidates []string
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() && strings.HasSuffix(path, ".csync") {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindMetadataLoadFailed, "discover-syncer-spec", err)
	}
	sort.Strings(candidates)

	anyParsed := false
	for _, path := range candidates {
		spec, derived, parsed, ok := tryLoadHeader(path, initial)
		if ok {
			return spec, derived, nil
		}
		anyParsed = anyParsed || parsed
	}
	if anyParsed {
		// At least one intact header was read; only the key failed to verify.
		return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindAuthenticationFail, "discover-syncer-spec",
			fmt.Errorf("no .csync header under %s verified against the supplied password", outDir))
	}
	return nil, secret.DerivedKey{}, csyncerr.New(csyncerr.KindMetadataLoadFailed, "discover-syncer-spec",
		fmt.Errorf("no readable .csync header under %s", outDir))
}

// tryLoadHeader parses one candidate file's header and checks whether the
// initial key's derived key verifies against its rehash. Any failure
// (unparseable header, wrong key) is reported via ok=false so the caller
// moves on to the next candidate rather than aborting the whole walk;
// parsed distinguishes an intact-but-unverified header from garbage.
func tryLoadHeader(path string, initial secret.InitialKey) (spec *SyncerSpec, derived secret.DerivedKey, parsed, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, secret.DerivedKey{}, false, false
	}
	defer f.Close()

	header, err := ReadHeader(f)
	if err != nil {
		return nil, secret.DerivedKey{}, false, false
	}

	derived, err = header.Syncer.KeyDeriv.Underlying().Derive(initial)
	if err != nil {
		return nil, secret.DerivedKey{}, true, false
	}
	if !kdf.VerifyRehash(derived, header.Action.Rehash) {
		derived.Close()
		return nil, secret.DerivedKey{}, true, false
	}

	spec = header.Syncer
	spec.Recovered = header.Action
	return spec, derived, true, true
}
