package metaspec

import (
	"bytes"
	"fmt"
	"io"

	csyncerr "csyncgo/internal/errors"
)

// AuthTagLen is the fixed length of the HMAC-SHA-512 tag recorded in every
// header.
const AuthTagLen = 64

// Header is the full on-disk prefix of a .csync file:
// AuthenticatorSpec, the HMAC tag over everything that follows it, then
// SyncerSpec and ActionSpec. The body follows immediately after.
type Header struct {
	Authenticator AuthenticatorSpec
	AuthTag       []byte
	Syncer        *SyncerSpec
	Action        *ActionSpec
}

// WriteHeaderPrefix writes AuthSpecSer and a zero-filled AuthTag placeholder
// to w, returning the file offset at which the placeholder's value bytes
// begin (after its length prefix) so the caller can seek back and patch in
// the real tag once the body has been fully streamed and hashed.
func WriteHeaderPrefix(w io.WriteSeeker, auth AuthenticatorSpec) (tagValueOffset int64, err error) {
	enc := NewEncoder(w)
	if err := auth.Encode(enc); err != nil {
		return 0, err
	}
	if err := enc.WriteUint32(AuthTagLen); err != nil {
		return 0, err
	}
	offset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(make([]byte, AuthTagLen)); err != nil {
		return 0, err
	}
	return offset, nil
}

// PatchAuthTag overwrites the AuthTag placeholder reserved by
// WriteHeaderPrefix with the real tag, then restores the writer's position
// to the end of the file so subsequent writes (if any) continue to append.
func PatchAuthTag(w io.WriteSeeker, tagValueOffset int64, tag []byte) error {
	if len(tag) != AuthTagLen {
		return csyncerr.New(csyncerr.KindSerdeFailed, "patch-auth-tag",
			fmt.Errorf("auth tag must be %d bytes, got %d", AuthTagLen, len(tag)))
	}
	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := w.Seek(tagValueOffset, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.Write(tag); err != nil {
		return err
	}
	_, err = w.Seek(end, io.SeekStart)
	return err
}

// WriteSyncerAndAction writes SyncerSpecSer followed by ActionSpecSer to w.
// These are the bytes the HMAC stage must cover along with the body; the
// caller is responsible for feeding the same bytes into the mac (see
// BuildEncodeChain in internal/codec).
func WriteSyncerAndAction(w io.Writer, syncer *SyncerSpec, action *ActionSpec) error {
	enc := NewEncoder(w)
	if err := syncer.Encode(enc); err != nil {
		return err
	}
	return action.Encode(enc)
}

// ReadHeader parses (AuthenticatorSpec, AuthTag, SyncerSpec, ActionSpec) from
// r in order. The body is not read; r is left positioned at its first byte.
func ReadHeader(r io.Reader) (*Header, error) {
	dec := NewDecoder(r)
	auth, err := DecodeAuthenticatorSpec(dec)
	if err != nil {
		return nil, err
	}
	tag, err := dec.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(tag) != AuthTagLen {
		return nil, csyncerr.New(csyncerr.KindSerdeFailed, "read-header",
			fmt.Errorf("auth tag must be %d bytes, got %d", AuthTagLen, len(tag)))
	}
	syncer, err := DecodeSyncerSpec(dec)
	if err != nil {
		return nil, err
	}
	action, err := DecodeActionSpec(dec)
	if err != nil {
		return nil, err
	}
	return &Header{Authenticator: auth, AuthTag: tag, Syncer: syncer, Action: action}, nil
}

// ReadSyncerAndActionWithRaw reads a SyncerSpec and ActionSpec from r (the
// reader positioned immediately after the AuthTag) while also returning the
// exact raw bytes consumed, so the caller can feed them into an HMAC
// accumulator that must cover these records plus the body that follows.
func ReadSyncerAndActionWithRaw(r io.Reader) (*SyncerSpec, *ActionSpec, []byte, error) {
	var raw bytes.Buffer
	dec := NewDecoder(io.TeeReader(r, &raw))
	syncer, err := DecodeSyncerSpec(dec)
	if err != nil {
		return nil, nil, nil, err
	}
	action, err := DecodeActionSpec(dec)
	if err != nil {
		return nil, nil, nil, err
	}
	return syncer, action, raw.Bytes(), nil
}
