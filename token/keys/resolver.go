package keys

import (
	"sync"
	"sync/atomic"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrKeyNotFound = errors.New("key not found")

var (
	supportedKeyAlgorithms = []jose.KeyAlgorithm{
		jose.RSA_OAEP_256,
		jose.RSA_OAEP,
		jose.RSA1_5,
		jose.ECDH_ES,
		jose.ECDH_ES_A128KW,
		jose.ECDH_ES_A256KW,
	}
	supportedContentEncryption = []jose.ContentEncryption{
		jose.A128CBC_HS256,
		jose.A256CBC_HS512,
		jose.A128GCM,
		jose.A256GCM,
	}
)

// keySets is an immutable snapshot. Private holds everything the server
// signs or decrypts with; public is what the JWKS endpoint exposes.
type keySets struct {
	private jose.JSONWebKeySet
	public  jose.JSONWebKeySet
}

// Resolver is the server's key store. Reads are lock free against an
// immutable snapshot, writers build a new snapshot and swap it in, so a
// reader sees either the whole old key set or the whole new one.
type Resolver struct {
	current atomic.Pointer[keySets]
	lock    sync.Mutex // serialises writers
}

// NewResolver creates a resolver holding the given private keys.
func NewResolver(privateKeys ...jose.JSONWebKey) (*Resolver, error) {
	r := &Resolver{}
	if err := r.Rotate(jose.JSONWebKeySet{Keys: privateKeys}); err != nil {
		return nil, errors.Wrap(err, "[NewResolver] Rotate")
	}
	return r, nil
}

func (r *Resolver) load() *keySets {
	if sets := r.current.Load(); sets != nil {
		return sets
	}
	return &keySets{}
}

// GetSigningKey returns the first private key with use=sig and the given algorithm.
func (r *Resolver) GetSigningKey(alg string) (jose.JSONWebKey, error) {
	return findKey(r.load().private, UseSig, alg)
}

// GetDefaultSigningKey returns the first private key with use=sig.
func (r *Resolver) GetDefaultSigningKey() (jose.JSONWebKey, error) {
	return findKey(r.load().private, UseSig, "")
}

// GetEncryptionKey returns the first public key with use=enc and the given algorithm.
func (r *Resolver) GetEncryptionKey(alg string) (jose.JSONWebKey, error) {
	return findKey(r.load().public, UseEnc, alg)
}

// GetPublicKeys returns the key set published to relying parties.
func (r *Resolver) GetPublicKeys() jose.JSONWebKeySet {
	public := r.load().public
	keys := make([]jose.JSONWebKey, len(public.Keys))
	copy(keys, public.Keys)
	return jose.JSONWebKeySet{Keys: keys}
}

// Add appends a private key to the current key set.
func (r *Resolver) Add(key jose.JSONWebKey) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	current := r.load()
	keys := make([]jose.JSONWebKey, 0, len(current.private.Keys)+1)
	keys = append(keys, current.private.Keys...)
	keys = append(keys, key)

	sets, err := buildKeySets(keys)
	if err != nil {
		return errors.Wrap(err, "[Resolver.Add]")
	}
	r.current.Store(sets)
	return nil
}

// Rotate replaces both the private and the public key set in one step.
func (r *Resolver) Rotate(private jose.JSONWebKeySet) error {
	sets, err := buildKeySets(private.Keys)
	if err != nil {
		return errors.Wrap(err, "[Resolver.Rotate]")
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.current.Store(sets)
	return nil
}

// VerificationKey is a jwt.Keyfunc resolving the key of a token signed by
// this server. The kid header is preferred, falling back to the algorithm.
func (r *Resolver) VerificationKey(t *jwt.Token) (any, error) {
	alg := t.Method.Alg()
	private := r.load().private

	var key jose.JSONWebKey
	var err error
	if kid, _ := t.Header["kid"].(string); kid != "" {
		key, err = findKeyByID(private, kid, UseSig)
	} else {
		key, err = findKey(private, UseSig, alg)
	}
	if err != nil {
		return nil, err
	}
	if key.Algorithm != alg {
		return nil, errors.Errorf("unexpected signing method: %v", alg)
	}
	if key.IsPublic() {
		return key.Key, nil
	}
	if public := key.Public(); public.Key != nil {
		return public.Key, nil
	}
	return key.Key, nil // symmetric
}

// Decrypt opens a compact JWE addressed to one of the server's encryption keys.
func (r *Resolver) Decrypt(compact string) ([]byte, error) {
	jwe, err := jose.ParseEncrypted(compact, supportedKeyAlgorithms, supportedContentEncryption)
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.Decrypt] ParseEncrypted")
	}

	private := r.load().private
	var key jose.JSONWebKey
	if jwe.Header.KeyID != "" {
		key, err = findKeyByID(private, jwe.Header.KeyID, UseEnc)
	} else {
		key, err = findKey(private, UseEnc, jwe.Header.Algorithm)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.Decrypt]")
	}

	plaintext, err := jwe.Decrypt(key.Key)
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.Decrypt] Decrypt")
	}
	return plaintext, nil
}

// Encrypt seals payload with the server's public encryption key for alg.
func (r *Resolver) Encrypt(payload []byte, alg, enc, contentType string) (string, error) {
	key, err := r.GetEncryptionKey(alg)
	if err != nil {
		return "", errors.Wrap(err, "[Resolver.Encrypt]")
	}

	opts := (&jose.EncrypterOptions{}).WithType("JWT")
	if contentType != "" {
		opts = opts.WithContentType(jose.ContentType(contentType))
	}
	encrypter, err := jose.NewEncrypter(
		jose.ContentEncryption(enc),
		jose.Recipient{Algorithm: jose.KeyAlgorithm(alg), Key: key.Key, KeyID: key.KeyID},
		opts,
	)
	if err != nil {
		return "", errors.Wrap(err, "[Resolver.Encrypt] NewEncrypter")
	}

	jwe, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", errors.Wrap(err, "[Resolver.Encrypt] Encrypt")
	}
	return jwe.CompactSerialize()
}

func buildKeySets(privateKeys []jose.JSONWebKey) (*keySets, error) {
	sets := &keySets{}
	for _, key := range privateKeys {
		if key.Use != UseSig && key.Use != UseEnc {
			return nil, errors.Errorf("key %s has unsupported use %q", key.KeyID, key.Use)
		}
		if key.Algorithm == "" {
			return nil, errors.Errorf("key %s has no algorithm", key.KeyID)
		}
		if key.IsPublic() {
			return nil, errors.Errorf("key %s is not a private key", key.KeyID)
		}
		sets.private.Keys = append(sets.private.Keys, key)

		if public := key.Public(); public.Key != nil {
			sets.public.Keys = append(sets.public.Keys, public)
		}
	}
	return sets, nil
}

// findKey returns the first key matching use and, when given, algorithm.
func findKey(set jose.JSONWebKeySet, use, alg string) (jose.JSONWebKey, error) {
	for _, key := range set.Keys {
		if key.Use != use {
			continue
		}
		if alg != "" && key.Algorithm != alg {
			continue
		}
		return key, nil
	}
	return jose.JSONWebKey{}, errors.Wrapf(ErrKeyNotFound, "use=%s alg=%s", use, alg)
}

func findKeyByID(set jose.JSONWebKeySet, kid, use string) (jose.JSONWebKey, error) {
	for _, key := range set.Key(kid) {
		if key.Use == use {
			return key, nil
		}
	}
	return jose.JSONWebKey{}, errors.Wrapf(ErrKeyNotFound, "kid=%s use=%s", kid, use)
}
