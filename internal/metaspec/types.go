package metaspec

import (
	"fmt"

	csyncerr "csyncgo/internal/errors"
	"csyncgo/internal/kdf"
)

// AuthenticatorKind enumerates the supported MAC algorithms. Only one
// variant exists today; the kind byte is recorded so a future algorithm can
// be added without breaking the on-disk format.
type AuthenticatorKind uint8

const AuthenticatorHmacSha512 AuthenticatorKind = 1

// AuthenticatorSpec names the MAC used over every .csync body.
type AuthenticatorSpec struct {
	Kind AuthenticatorKind
}

func (a AuthenticatorSpec) Encode(enc *Encoder) error {
	return enc.WriteUint8(uint8(a.Kind))
}

func DecodeAuthenticatorSpec(dec *Decoder) (AuthenticatorSpec, error) {
	v, err := dec.ReadUint8()
	if err != nil {
		return AuthenticatorSpec{}, err
	}
	k := AuthenticatorKind(v)
	if k != AuthenticatorHmacSha512 {
		return AuthenticatorSpec{}, csyncerr.New(csyncerr.KindSerdeFailed, "decode-authenticator-spec",
			fmt.Errorf("unknown authenticator kind %d", v))
	}
	return AuthenticatorSpec{Kind: k}, nil
}

// CipherKind enumerates the supported body ciphers.
type CipherKind uint8

const (
	CipherAes256Cbc CipherKind = 1
	CipherChaCha20  CipherKind = 2
)

func (k CipherKind) String() string {
	switch k {
	case CipherAes256Cbc:
		return "aes256cbc"
	case CipherChaCha20:
		return "chacha20"
	default:
		return "unknown"
	}
}

func ParseCipherKind(s string) (CipherKind, error) {
	switch s {
	case "aes256cbc":
		return CipherAes256Cbc, nil
	case "chacha20":
		return CipherChaCha20, nil
	default:
		return 0, csyncerr.New(csyncerr.KindOther, "parse-cipher-kind", fmt.Errorf("unknown cipher %q", s))
	}
}

// CipherSpec is a cipher choice plus the IV actually used for one file. The
// SyncerSpec only ever records the CipherKind; a CipherSpec with a freshly
// drawn IV is minted per file and stored in that file's ActionSpec.
type CipherSpec struct {
	Kind CipherKind
	IV   []byte
}

func (c CipherSpec) Encode(enc *Encoder) error {
	if err := enc.WriteUint8(uint8(c.Kind)); err != nil {
		return err
	}
	return enc.WriteBytes(c.IV)
}

func DecodeCipherSpec(dec *Decoder) (CipherSpec, error) {
	kindByte, err := dec.ReadUint8()
	if err != nil {
		return CipherSpec{}, err
	}
	kind := CipherKind(kindByte)
	if kind != CipherAes256Cbc && kind != CipherChaCha20 {
		return CipherSpec{}, csyncerr.New(csyncerr.KindSerdeFailed, "decode-cipher-spec",
			fmt.Errorf("unknown cipher kind %d", kindByte))
	}
	iv, err := dec.ReadBytes()
	if err != nil {
		return CipherSpec{}, err
	}
	return CipherSpec{Kind: kind, IV: iv}, nil
}

// CompressorSpec is the Zstandard compression level, 0..=22.
type CompressorSpec struct {
	Level int
}

func (c CompressorSpec) Encode(enc *Encoder) error {
	if c.Level < 0 || c.Level > 22 {
		return csyncerr.New(csyncerr.KindOther, "encode-compressor-spec",
			fmt.Errorf("zstd level %d out of range [0, 22]", c.Level))
	}
	return enc.WriteUint8(uint8(c.Level))
}

func DecodeCompressorSpec(dec *Decoder) (CompressorSpec, error) {
	v, err := dec.ReadUint8()
	if err != nil {
		return CompressorSpec{}, err
	}
	if v > 22 {
		return CompressorSpec{}, csyncerr.New(csyncerr.KindSerdeFailed, "decode-compressor-spec",
			fmt.Errorf("zstd level %d out of range [0, 22]", v))
	}
	return CompressorSpec{Level: int(v)}, nil
}

// KeyDerivKind enumerates the supported KDFs.
type KeyDerivKind uint8

const (
	KeyDerivPbkdf2 KeyDerivKind = 1
	KeyDerivScrypt KeyDerivKind = 2
)

// KeyDerivSpec wraps whichever kdf.Spec variant the run was configured
// with. Exactly one of Pbkdf2/Scrypt is populated, selected by Kind.
type KeyDerivSpec struct {
	Kind   KeyDerivKind
	Pbkdf2 kdf.Pbkdf2Spec
	Scrypt kdf.ScryptSpec
}

// NewKeyDerivPbkdf2 wraps a Pbkdf2Spec.
func NewKeyDerivPbkdf2(s kdf.Pbkdf2Spec) KeyDerivSpec {
	return KeyDerivSpec{Kind: KeyDerivPbkdf2, Pbkdf2: s}
}

// NewKeyDerivScrypt wraps a ScryptSpec.
func NewKeyDerivScrypt(s kdf.ScryptSpec) KeyDerivSpec {
	return KeyDerivSpec{Kind: KeyDerivScrypt, Scrypt: s}
}

// Underlying returns the wrapped kdf.Spec.
func (k KeyDerivSpec) Underlying() kdf.Spec {
	if k.Kind == KeyDerivPbkdf2 {
		return k.Pbkdf2
	}
	return k.Scrypt
}

func (k KeyDerivSpec) Encode(enc *Encoder) error {
	if err := enc.WriteUint8(uint8(k.Kind)); err != nil {
		return err
	}
	switch k.Kind {
	case KeyDerivPbkdf2:
		if err := enc.WriteUint8(uint8(k.Pbkdf2.Alg)); err != nil {
			return err
		}
		if err := enc.WriteUint32(uint32(k.Pbkdf2.NumIter)); err != nil {
			return err
		}
		if err := enc.WriteBytes(k.Pbkdf2.Salt); err != nil {
			return err
		}
		return enc.WriteUint32(uint32(k.Pbkdf2.OutputLen()))
	case KeyDerivScrypt:
		if err := enc.WriteUint32(uint32(k.Scrypt.LogN)); err != nil {
			return err
		}
		if err := enc.WriteUint32(uint32(k.Scrypt.R)); err != nil {
			return err
		}
		if err := enc.WriteUint32(uint32(k.Scrypt.P)); err != nil {
			return err
		}
		if err := enc.WriteBytes(k.Scrypt.Salt); err != nil {
			return err
		}
		return enc.WriteUint32(uint32(k.Scrypt.OutputLen()))
	default:
		return csyncerr.New(csyncerr.KindSerdeFailed, "encode-key-deriv-spec",
			fmt.Errorf("unknown key_deriv kind %d", k.Kind))
	}
}

func DecodeKeyDerivSpec(dec *Decoder) (KeyDerivSpec, error) {
	kindByte, err := dec.ReadUint8()
	if err != nil {
		return KeyDerivSpec{}, err
	}
	switch KeyDerivKind(kindByte) {
	case KeyDerivPbkdf2:
		algByte, err := dec.ReadUint8()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		numIter, err := dec.ReadUint32()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		salt, err := dec.ReadBytes()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		outLen, err := dec.ReadUint32()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		spec := kdf.NewPbkdf2Spec(kdf.HmacAlg(algByte), int(numIter), salt, int(outLen))
		return NewKeyDerivPbkdf2(spec), nil
	case KeyDerivScrypt:
		logN, err := dec.ReadUint32()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		r, err := dec.ReadUint32()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		p, err := dec.ReadUint32()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		salt, err := dec.ReadBytes()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		outLen, err := dec.ReadUint32()
		if err != nil {
			return KeyDerivSpec{}, err
		}
		spec := kdf.NewScryptSpec(int(logN), int(r), int(p), salt, int(outLen))
		return NewKeyDerivScrypt(spec), nil
	default:
		return KeyDerivSpec{}, csyncerr.New(csyncerr.KindSerdeFailed, "decode-key-deriv-spec",
			fmt.Errorf("unknown key_deriv kind %d", kindByte))
	}
}

// EncodeRehashSpec writes a kdf.RehashSpec (salt then output).
func EncodeRehashSpec(enc *Encoder, r kdf.RehashSpec) error {
	if err := enc.WriteBytes(r.Salt); err != nil {
		return err
	}
	return enc.WriteBytes(r.Output)
}

// DecodeRehashSpec reads a kdf.RehashSpec.
func DecodeRehashSpec(dec *Decoder) (kdf.RehashSpec, error) {
	salt, err := dec.ReadBytes()
	if err != nil {
		return kdf.RehashSpec{}, err
	}
	output, err := dec.ReadBytes()
	if err != nil {
		return kdf.RehashSpec{}, err
	}
	return kdf.RehashSpec{Salt: salt, Output: output}, nil
}

// Mode distinguishes an encrypt run from a decrypt run.
type Mode uint8

const (
	ModeEncrypt Mode = iota
	ModeDecrypt
)

func (m Mode) String() string {
	if m == ModeDecrypt {
		return "decrypt"
	}
	return "encrypt"
}

// SyncerSpec is the immutable description of one run: either freshly built
// from CLI options (fresh encrypt) or recovered from the first readable
// ciphertext file under OutDir (resume encrypt / decrypt).
type SyncerSpec struct {
	Mode          Mode
	Authenticator AuthenticatorSpec
	Cipher        CipherKind
	Compressor    CompressorSpec
	KeyDeriv      KeyDerivSpec
	InitSalt      []byte
	SpreadDepth   int
	SaltLen       int
	Source        string
	OutDir        string
	Verbose       bool

	// Recovered is set only when Mode == ModeDecrypt (or a resumed encrypt)
	// and holds the ActionSpec read from the file that established this
	// SyncerSpec. It is never itself serialized; it is a loader-local
	// artifact of discovery, not part of the run description.
	Recovered *ActionSpec
}

// NewSyncerSpec validates the spread depth range and the init_salt length
// and returns a SyncerSpec, or an error identifying which check failed.
// Source and out_dir are stored as given; they are not compared here.
func NewSyncerSpec(mode Mode, authenticator AuthenticatorSpec, cipher CipherKind, compressor CompressorSpec,
	keyDeriv KeyDerivSpec, initSalt []byte, spreadDepth, saltLen int, source, outDir string, verbose bool,
) (*SyncerSpec, error) {
	if spreadDepth < 1 || spreadDepth > 86 {
		return nil, csyncerr.New(csyncerr.KindInvalidSpreadDepth, "new-syncer-spec",
			fmt.Errorf("spread_depth %d outside [1, 86]", spreadDepth))
	}
	if len(initSalt) != saltLen {
		return nil, csyncerr.New(csyncerr.KindOther, "new-syncer-spec",
			fmt.Errorf("init_salt length %d != salt_len %d", len(initSalt), saltLen))
	}
	return &SyncerSpec{
		Mode:          mode,
		Authenticator: authenticator,
		Cipher:        cipher,
		Compressor:    compressor,
		KeyDeriv:      keyDeriv,
		InitSalt:      initSalt,
		SpreadDepth:   spreadDepth,
		SaltLen:       saltLen,
		Source:        source,
		OutDir:        outDir,
		Verbose:       verbose,
	}, nil
}

func (s *SyncerSpec) Encode(enc *Encoder) error {
	if err := enc.WriteUint8(uint8(s.Mode)); err != nil {
		return err
	}
	if err := s.Authenticator.Encode(enc); err != nil {
		return err
	}
	if err := enc.WriteUint8(uint8(s.Cipher)); err != nil {
		return err
	}
	if err := s.Compressor.Encode(enc); err != nil {
		return err
	}
	if err := s.KeyDeriv.Encode(enc); err != nil {
		return err
	}
	if err := enc.WriteBytes(s.InitSalt); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(s.SpreadDepth)); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(s.SaltLen)); err != nil {
		return err
	}
	if err := enc.WriteString(s.Source); err != nil {
		return err
	}
	if err := enc.WriteString(s.OutDir); err != nil {
		return err
	}
	return enc.WriteBool(s.Verbose)
}

func DecodeSyncerSpec(dec *Decoder) (*SyncerSpec, error) {
	modeByte, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	authenticator, err := DecodeAuthenticatorSpec(dec)
	if err != nil {
		return nil, err
	}
	cipherByte, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	compressor, err := DecodeCompressorSpec(dec)
	if err != nil {
		return nil, err
	}
	keyDeriv, err := DecodeKeyDerivSpec(dec)
	if err != nil {
		return nil, err
	}
	initSalt, err := dec.ReadBytes()
	if err != nil {
		return nil, err
	}
	spreadDepth, err := dec.ReadUint32()
	if err != nil {
		return nil, err
	}
	saltLen, err := dec.ReadUint32()
	if err != nil {
		return nil, err
	}
	source, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	outDir, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	verbose, err := dec.ReadBool()
	if err != nil {
		return nil, err
	}
	return &SyncerSpec{
		Mode:          Mode(modeByte),
		Authenticator: authenticator,
		Cipher:        CipherKind(cipherByte),
		Compressor:    compressor,
		KeyDeriv:      keyDeriv,
		InitSalt:      initSalt,
		SpreadDepth:   int(spreadDepth),
		SaltLen:       int(saltLen),
		Source:        source,
		OutDir:        outDir,
		Verbose:       verbose,
	}, nil
}

// ActionSpec is the per-file record: the cipher as actually used (with a
// freshly drawn IV), the source entry's Unix mode bits (nil when the entry
// vanished before it could be stat'd, or for a decrypt probe that never had
// a mode), and the rehash used to verify a candidate derived key against
// this file without ever storing the derived key itself.
type ActionSpec struct {
	Cipher   CipherSpec
	UnixMode *uint32
	Rehash   kdf.RehashSpec
}

func (a *ActionSpec) Encode(enc *Encoder) error {
	if err := a.Cipher.Encode(enc); err != nil {
		return err
	}
	if err := enc.WriteOptionalUint32(a.UnixMode); err != nil {
		return err
	}
	return EncodeRehashSpec(enc, a.Rehash)
}

func DecodeActionSpec(dec *Decoder) (*ActionSpec, error) {
	cipher, err := DecodeCipherSpec(dec)
	if err != nil {
		return nil, err
	}
	unixMode, err := dec.ReadOptionalUint32()
	if err != nil {
		return nil, err
	}
	rehash, err := DecodeRehashSpec(dec)
	if err != nil {
		return nil, err
	}
	return &ActionSpec{Cipher: cipher, UnixMode: unixMode, Rehash: rehash}, nil
}
