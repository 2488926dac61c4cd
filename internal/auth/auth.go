package auth

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/hkdf"

	"github.com/openbid/auction-server/pkg/errors"
)

const sessionCookie = "authjs.session-token"

// Identity is what the rest of the system knows about an authenticated
// caller. Token mechanics stay inside this package.
type Identity struct {
	UserID string
	Email  string
}

// Verifier validates Auth.js session cookies (JWE encrypted with a key
// derived from the shared secret).
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) encryptionKey() ([]byte, error) {
	if len(v.secret) == 0 {
		return nil, errors.New(errors.ReasonInternal, "auth secret not configured")
	}

	salt := sessionCookie
	info := fmt.Sprintf("Auth.js Generated Encryption Key (%s)", salt)

	// HKDF with SHA-256
	kdf := hkdf.New(sha256.New, v.secret, []byte(salt), []byte(info))

	key := make([]byte, 64)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive encryption key")
	}
	return key, nil
}

// jweToJWT re-signs the decrypted session payload as a plain JWT so it can be
// validated with the standard jwt helpers.
func (v *Verifier) jweToJWT(encryptedToken string) (string, error) {
	key, err := v.encryptionKey()
	if err != nil {
		return "", err
	}

	// Decrypt JWE using DIRECT key encryption and A256GCM content encryption
	decrypted, err := jwe.Decrypt([]byte(encryptedToken),
		jwe.WithKey(jwa.DIRECT(), key))
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt session token")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(decrypted, &payload); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal session payload")
	}

	token := jwt.New()
	for k, val := range payload {
		token.Set(k, val)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), v.secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign session token")
	}
	return string(signed), nil
}

// Authenticate validates the session cookie and returns the caller identity.
func (v *Verifier) Authenticate(r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return Identity{}, errors.New(errors.ReasonUnauthorized, "missing session token cookie")
	}

	jwtString, err := v.jweToJWT(cookie.Value)
	if err != nil {
		return Identity{}, err
	}

	token, err := jwt.Parse([]byte(jwtString),
		jwt.WithKey(jwa.HS256(), v.secret),
		jwt.WithValidate(true))
	if err != nil {
		return Identity{}, errors.Wrap(err, "failed to validate session token")
	}

	if exp, ok := token.Expiration(); ok && exp.Before(time.Now()) {
		return Identity{}, errors.New(errors.ReasonUnauthorized, "session token expired")
	}

	userID, ok := token.Subject()
	if !ok {
		return Identity{}, errors.New(errors.ReasonUnauthorized, "session token missing subject")
	}

	var email string
	if err := token.Get("email", &email); err != nil {
		return Identity{}, errors.New(errors.ReasonUnauthorized, "session token missing email claim")
	}

	return Identity{UserID: userID, Email: email}, nil
}
