package symbols

import "strings"

// Reserved metadata keys. Aspect annotations use the "aspect." prefix
// so they can be enumerated without a registry lookup.
const (
	MetaRole       = "role"
	MetaEntity     = "entity"
	MetaDomain     = "domain"
	AspectPrefix   = "aspect."
	RoleEntrypoint = "entrypoint"
)

// AspectKey returns the metadata key storing the given aspect.
func AspectKey(aspect string) string {
	return AspectPrefix + aspect
}

// AspectFromKey extracts the aspect name from a metadata key, or ""
// if the key is not an aspect key.
func AspectFromKey(key string) string {
	if !strings.HasPrefix(key, AspectPrefix) {
		return ""
	}
	return key[len(AspectPrefix):]
}

// MetadataSet is the metadata of one definition, keyed by name.
type MetadataSet map[string]string

// HasAspect reports whether the set carries the given aspect.
func (m MetadataSet) HasAspect(aspect string) bool {
	_, ok := m[AspectKey(aspect)]
	return ok
}

// Aspects lists the aspect names present in the set.
func (m MetadataSet) Aspects() []string {
	var names []string
	for k := range m {
		if a := AspectFromKey(k); a != "" {
			names = append(names, a)
		}
	}
	return names
}

// IsEntrypoint reports whether the set marks its definition as an
// entry point, whether set by hand or by the classifier.
func (m MetadataSet) IsEntrypoint() bool {
	return m[MetaRole] == RoleEntrypoint || m[AspectKey(MetaRole)] == RoleEntrypoint
}

// Domain returns the definition's domain tag; a manually set key wins
// over a classified one.
func (m MetadataSet) Domain() string {
	if v := m[MetaDomain]; v != "" {
		return v
	}
	return m[AspectKey(MetaDomain)]
}
