package launch

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/shell"
)

// getenv retrieves an environment variable value from the environment list.
func getenv(env []string, key string, defaultVal string) string {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return strings.TrimPrefix(e, prefix)
		}
	}
	return defaultVal
}

// hasEnv checks if an environment variable is set in the environment list.
func hasEnv(env []string, key string) bool {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

// setEnv replaces key in env, or appends it.
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// parseEnvAssignments reads KEY=VALUE words from a configured line. Values
// may be quoted.
func parseEnvAssignments(line string) ([]string, error) {
	words, err := shell.Split(line)
	if err != nil {
		return nil, fmt.Errorf("environment variables: %w", err)
	}
	for _, w := range words {
		if key, _, ok := strings.Cut(w, "="); !ok || key == "" {
			return nil, fmt.Errorf("environment variables: %q is not KEY=VALUE", w)
		}
	}
	return words, nil
}

// logEnvironmentTrace logs environment variables at trace level, redacting sensitive values.
func logEnvironmentTrace(env []string, logger hclog.Logger) {
	if !logger.IsTrace() {
		return
	}

	logger.Trace("🌍 Environment variables being passed to the game:")
	for _, e := range env {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			value := parts[1]
			if isSensitiveKey(parts[0]) {
				value = "***"
			}
			logger.Trace("  →", "key", parts[0], "value", value)
		}
	}
}

// isSensitiveKey checks if an environment variable key is sensitive and should be redacted in logs.
func isSensitiveKey(key string) bool {
	sensitiveKeys := map[string]bool{
		"SSH_AUTH_SOCK":         true,
		"AWS_SECRET_ACCESS_KEY": true,
		"GITHUB_TOKEN":          true,
		"PASSWORD":              true,
		"MINECRAFT_TOKEN":       true,
	}
	return sensitiveKeys[strings.ToUpper(key)]
}

// sensitiveFlags take a credential as their next argument.
var sensitiveFlags = map[string]bool{
	"--accessToken": true,
	"--session":     true,
	"--password":    true,
}

// redactArgs returns a copy of args with credential values masked.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if i > 0 && sensitiveFlags[args[i-1]] {
			out[i] = "***"
			continue
		}
		out[i] = a
	}
	return out
}
