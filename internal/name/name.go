// Package name derives deterministic identifiers from user-supplied
// sandbox and service names. All functions are pure: equal inputs produce
// equal outputs across processes.
package name

import (
	"strings"

	"github.com/litterbox-sh/litterbox/internal/errors"
)

// MaxSlugLength is the longest accepted slug. 63 keeps identifiers within
// the common container and DNS label limit.
const MaxSlugLength = 63

const envVarPrefix = "LITTERBOX_FWD_PORT_"

// Slugify lowercases the name, maps every run of non-alphanumeric
// characters to a single dash, and trims leading/trailing dashes. The
// result may be empty; use SlugifyName to validate.
func Slugify(s string) string {
	var slug strings.Builder
	lastWasDash := false

	for _, ch := range strings.ToLower(s) {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			slug.WriteRune(ch)
			lastWasDash = false
		} else if !lastWasDash {
			slug.WriteByte('-')
			lastWasDash = true
		}
	}

	return strings.Trim(slug.String(), "-")
}

// ValidateSlug checks that slug is 1-63 characters of [a-z0-9-]. The
// original (pre-slugify) name is reported in the error.
func ValidateSlug(original, slug string) error {
	valid := slug != "" && len(slug) <= MaxSlugLength
	if valid {
		for _, ch := range slug {
			if !((ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-') {
				valid = false
				break
			}
		}
	}

	if !valid {
		return errors.InvalidName(original,
			"slugified names must be 1-63 characters and contain only [a-z0-9-]")
	}
	return nil
}

// SlugifyName slugifies and validates in one step.
func SlugifyName(s string) (string, error) {
	slug := Slugify(s)
	if err := ValidateSlug(s, slug); err != nil {
		return "", err
	}
	return slug, nil
}

// BranchName returns the repository branch for a sandbox slug.
func BranchName(slug string) string {
	return "litterbox/" + slug
}

// SlugFromBranch extracts the sandbox slug from a litterbox branch name.
// The second return is false for branches outside the litterbox namespace.
func SlugFromBranch(branch string) (string, bool) {
	slug, ok := strings.CutPrefix(branch, "litterbox/")
	if !ok || slug == "" {
		return "", false
	}
	return slug, true
}

// ContainerName returns the host-unique container name for a sandbox.
func ContainerName(repoSlug, slug string) string {
	return "litterbox-" + repoSlug + "-" + slug
}

// ContainerPrefix returns the container-name prefix shared by every
// sandbox of a repository.
func ContainerPrefix(repoSlug string) string {
	return "litterbox-" + repoSlug + "-"
}

// ServiceEnvVar returns the environment variable that carries a forwarded
// service's host port inside the container.
func ServiceEnvVar(serviceSlug string) string {
	return envVarPrefix + strings.ToUpper(strings.ReplaceAll(serviceSlug, "-", "_"))
}

// ServiceFromEnvVar inverts ServiceEnvVar. The second return is false for
// environment variables outside the forwarded-port namespace.
func ServiceFromEnvVar(envVar string) (string, bool) {
	rest, ok := strings.CutPrefix(envVar, envVarPrefix)
	if !ok || rest == "" {
		return "", false
	}
	return strings.ReplaceAll(strings.ToLower(rest), "_", "-"), true
}
