// Package constants defines shared constants for littlejwt.
// This package provides type-safe identifiers used across all engines.
package constants

import "time"

// ================================================================================
// Token Part Constants
// ================================================================================

// Part identifies which claim set of a token a claim belongs to.
type Part string

const (
	// PartAuto lets the builder route the claim by its reserved-key sets
	PartAuto Part = ""

	// PartHeader places the claim in the JOSE header
	PartHeader Part = "header"

	// PartPayload places the claim in the payload
	PartPayload Part = "payload"
)

// ================================================================================
// Registered Claim Names
// ================================================================================

const (
	// ClaimIssuer identifies the principal that issued the token
	ClaimIssuer = "iss"

	// ClaimSubject identifies the principal that is the subject of the token
	ClaimSubject = "sub"

	// ClaimAudience identifies the recipients the token is intended for
	ClaimAudience = "aud"

	// ClaimExpiresAt is the time on or after which the token must be rejected
	ClaimExpiresAt = "exp"

	// ClaimNotBefore is the time before which the token must be rejected
	ClaimNotBefore = "nbf"

	// ClaimIssuedAt is the time at which the token was issued
	ClaimIssuedAt = "iat"

	// ClaimID is the unique token identifier
	ClaimID = "jti"
)

// ================================================================================
// Header Parameter Names
// ================================================================================

const (
	HeaderAlgorithm     = "alg"
	HeaderType          = "typ"
	HeaderKeyID         = "kid"
	HeaderContentType   = "cty"
	HeaderJWKSetURL     = "jku"
	HeaderJWK           = "jwk"
	HeaderX509URL       = "x5u"
	HeaderX509Chain     = "x5c"
	HeaderX509Thumb     = "x5t"
	HeaderX509ThumbS256 = "x5t#S256"
	HeaderCritical      = "crit"
	HeaderEncryption    = "enc"
	HeaderCompression   = "zip"

	// TokenTypeJWT is the default value of the typ header
	TokenTypeJWT = "JWT"
)

// DefaultHeaderKeys returns the reserved header parameter names.
func DefaultHeaderKeys() []string {
	return []string{
		HeaderAlgorithm, HeaderType, HeaderKeyID, HeaderContentType,
		HeaderJWKSetURL, HeaderJWK, HeaderX509URL, HeaderX509Chain,
		HeaderX509Thumb, HeaderX509ThumbS256, HeaderCritical,
		HeaderEncryption, HeaderCompression,
	}
}

// DefaultPayloadKeys returns the registered claim names that always live in the payload.
func DefaultPayloadKeys() []string {
	return []string{
		ClaimIssuer, ClaimSubject, ClaimAudience, ClaimExpiresAt,
		ClaimNotBefore, ClaimIssuedAt, ClaimID,
	}
}

// ================================================================================
// Defaults Phase Constants
// ================================================================================

// DefaultsMode selects where the default buildable or validatable runs.
type DefaultsMode string

const (
	// DefaultsBefore runs defaults before caller-supplied sources
	DefaultsBefore DefaultsMode = "before"

	// DefaultsAfter runs defaults after caller-supplied sources
	DefaultsAfter DefaultsMode = "after"

	// DefaultsDisabled skips defaults entirely
	DefaultsDisabled DefaultsMode = "disabled"
)

// ================================================================================
// Key Source Constants
// ================================================================================

// KeySource selects where key material is loaded from.
type KeySource string

const (
	KeySourceSecret KeySource = "secret"
	KeySourceFile   KeySource = "file"
	KeySourceRandom KeySource = "random"
	KeySourceNone   KeySource = "none"
	KeySourceVault  KeySource = "vault"
)

// KeyFileType selects how a key file is decoded.
type KeyFileType string

const (
	KeyFilePEM  KeyFileType = "pem"
	KeyFileP12  KeyFileType = "p12"
	KeyFileCert KeyFileType = "cert"
)

// ================================================================================
// Revocation Driver Constants
// ================================================================================

// RevocationDriver selects the revocation store backend.
type RevocationDriver string

const (
	// RevocationDriverCache is the in-process TTL cache
	RevocationDriverCache RevocationDriver = "cache"

	// RevocationDriverRedis stores entries in Redis with native TTLs
	RevocationDriverRedis RevocationDriver = "redis"

	// RevocationDriverDatabase stores entries in a SQL table with expiry timestamps
	RevocationDriverDatabase RevocationDriver = "database"

	// RevocationDriverNone disables revocation checks
	RevocationDriverNone RevocationDriver = "none"
)

// ================================================================================
// Defaults
// ================================================================================

const (
	// DefaultAlgorithm is the signing algorithm used when none is configured
	DefaultAlgorithm = "HS256"

	// DefaultTokenTTL is the lifetime applied by the default claims buildable
	DefaultTokenTTL = time.Hour

	// DefaultRevocationTTL is used when Revoke is called with a negative ttl
	DefaultRevocationTTL = 30 * 24 * time.Hour

	// DefaultRandomKeySize is the byte length of randomly generated secrets
	DefaultRandomKeySize = 64

	// DefaultRevocationTable is the durable store table name
	DefaultRevocationTable = "littlejwt_revocations"

	// DefaultRevocationIDColumn holds the token identifier
	DefaultRevocationIDColumn = "token_id"

	// DefaultRevocationExpiryColumn holds the nullable expiry timestamp
	DefaultRevocationExpiryColumn = "expires_at"

	// DefaultRedisKeyPrefix namespaces revocation keys in Redis
	DefaultRedisKeyPrefix = "littlejwt:revoked:"

	// DefaultRevocationTopic carries revocation broadcasts between instances
	DefaultRevocationTopic = "littlejwt.revocations"

	// DefaultMutatorCacheSize bounds the parsed definition cache
	DefaultMutatorCacheSize = 256

	// DefaultVaultCacheTTL is how long a key fetched from Vault stays cached
	DefaultVaultCacheTTL = 5 * time.Minute
)

// ================================================================================
// Observability
// ================================================================================

const (
	// ServiceName is used as the tracer name and metrics namespace default
	ServiceName = "littlejwt"

	// TracerName is the instrumentation scope for spans
	TracerName = "github.com/turtacn/littlejwt"
)
