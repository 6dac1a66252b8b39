package middleware

import (
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"

	"mindrian/internal/gateway/handlers"
	"mindrian/pkg/logger"
)

// DefaultAPIVersion is served when no valid version is configured.
const DefaultAPIVersion = "1.0.0"

// VersionConfig configures API versioning middleware.
type VersionConfig struct {
	// CurrentVersion is the semantic version of the API this server speaks.
	CurrentVersion string
	// Sunset, when set, marks the current version deprecated.
	Sunset time.Time
}

// DefaultVersionConfig returns the default version configuration.
func DefaultVersionConfig() VersionConfig {
	return VersionConfig{CurrentVersion: DefaultAPIVersion}
}

// Version returns middleware that negotiates the API version. Accept-Version
// is read as a semver constraint ("1", "^1.2", ">=1.0 <2") that the served
// version must satisfy; a malformed constraint is a 400 and an unsatisfied
// one a 406. Every response carries API-Version.
func Version(config VersionConfig) func(http.Handler) http.Handler {
	current, err := semver.NewVersion(config.CurrentVersion)
	if err != nil {
		logger.Warn().Err(err).Str("version", config.CurrentVersion).Msg("Invalid API version, using default")
		current = semver.MustParse(DefaultAPIVersion)
	}
	served := current.String()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("API-Version", served)
			if !config.Sunset.IsZero() {
				w.Header().Set("Deprecation", "true")
				w.Header().Set("Sunset", config.Sunset.UTC().Format(http.TimeFormat))
			}

			if requested := r.Header.Get("Accept-Version"); requested != "" {
				constraint, err := semver.NewConstraint(requested)
				if err != nil {
					handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "invalid Accept-Version: "+requested)
					return
				}
				if !constraint.Check(current) {
					handlers.SendError(w, http.StatusNotAcceptable, handlers.ErrCodeUnsupportedVersion,
						"API version "+served+" does not satisfy "+requested)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
