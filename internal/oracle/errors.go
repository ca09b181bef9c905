package oracle

import "errors"

var (
	// ErrKeyFetch means the domain's key document could not be retrieved.
	ErrKeyFetch = errors.New("oracle: public key fetch failed")
	// ErrInvalidKey means the key document was retrieved but holds no usable secp256k1 key.
	ErrInvalidKey = errors.New("oracle: invalid public key")
	// ErrContentFetch means the attested page could not be retrieved.
	ErrContentFetch = errors.New("oracle: content fetch failed")
	// ErrBlockLookup means the block API failed or answered with something unparsable.
	ErrBlockLookup = errors.New("oracle: block lookup failed")
	// ErrBlockNotFound means the block API does not confirm the hash.
	ErrBlockNotFound = errors.New("oracle: block not confirmed")
)
