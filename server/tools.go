package regler

import (
	"log/slog"
	"os"
	"strconv"
)

// FillEnvVar returns the value of a runtime Environment Variable
func FillEnvVar(ev string) string {
	// If the EnvVar doesn't exist return a default string
	value := os.Getenv(ev)
	if value == "" {
		value = "ENOENT"
	}
	return value
}

// FillEnvVarDefault returns the Environment Variable or def when unset
func FillEnvVarDefault(ev, def string) string {
	value := FillEnvVar(ev)
	if value == "ENOENT" {
		return def
	}
	return value
}

// FillEnvVarInt returns the Environment Variable as an int,
// def when it is unset or not a number
func FillEnvVarInt(ev string, def int) int {
	value := FillEnvVar(ev)
	if value == "ENOENT" {
		return def
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("not a number, using default", slog.String("var", ev), slog.Int("default", def))
		return def
	}
	return i
}

// UrlCat is variadic, concatenating any set of strings into a URL.
// It can be used to embed a dynamic string alongside static parts of a URI.
// /u/ is a slice of strings used to build completeURL
func UrlCat(u ...string) string {
	var completeURL string
	for _, p := range u {
		completeURL = completeURL + p
	}
	slog.Info("New endpoint", slog.String("URL", completeURL))
	return completeURL
}
