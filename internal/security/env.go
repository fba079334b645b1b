package security

import (
	"os"
	"strings"
)

// sensitiveEnvSuffixes mark devwarm's own credentials. Only DEVWARM_
// variables are matched so warmup scripts keep the tokens their build
// tools need (GITHUB_TOKEN for private modules, registry passwords).
var sensitiveEnvSuffixes = []string{
	"_TOKEN",
	"_PASSWORD",
	"_PASS",
	"_SECRET",
	"_KEY",
}

// sensitiveEnvExact are stripped regardless of prefix.
var sensitiveEnvExact = map[string]struct{}{
	"INDEXER_TOKEN": {},
}

// SanitizedEnv returns os.Environ() for a warmup subprocess: devwarm's
// credential variables are removed, as is any variable whose value carries
// a literal registered with r. extra entries are appended last and win over
// inherited ones.
func SanitizedEnv(r *Redactor, extra ...string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env)+len(extra))

	for _, entry := range env {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if isSensitiveEnvVar(key) || r.containsLiteral(value) {
			continue
		}
		result = append(result, entry)
	}

	return append(result, extra...)
}

// isSensitiveEnvVar checks if an environment variable name is one of
// devwarm's own secrets.
func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)

	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	if !strings.HasPrefix(upper, "DEVWARM_") {
		return false
	}
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}
