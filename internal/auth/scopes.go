package auth

// Scopes accepted by the tracker API.
const (
	ScopeUsersWrite      = "users:write"
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
	ScopeProgressRead    = "progress:read"
)

// AllScopes lists every scope, in the order trackerctl prints them.
var AllScopes = []string{ScopeUsersWrite, ScopeActivitiesWrite, ScopeActivitiesRead, ScopeProgressRead}

// implied maps a scope to the broader scopes that also grant it.
var implied = map[string][]string{
	ScopeActivitiesRead: {ScopeActivitiesWrite},
	ScopeProgressRead:   {ScopeActivitiesWrite, ScopeUsersWrite},
}

// Allows reports whether claims grant scope directly or through a broader write scope.
func Allows(claims *Claims, scope string) bool {
	if claims.HasScope(scope) {
		return true
	}
	for _, broader := range implied[scope] {
		if claims.HasScope(broader) {
			return true
		}
	}
	return false
}
