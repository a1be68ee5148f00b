package fitsynth

import "github.com/google/uuid"

// idNamespace prefixes every natural key so that ids from this project can
// never collide with UUIDv5 ids minted by anything else sharing the URL
// namespace.
const idNamespace = "fitsense"

// StableID derives a deterministic UUIDv5 from an entity kind and its
// natural key. The same kind and key always produce the same id, across
// runs and platforms, so re-generation with an identical seed reproduces
// identical keys and downstream stages can join on identity rather than
// row order.
func StableID(kind, value string) string {
	name := idNamespace + ":" + kind + ":" + value
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
