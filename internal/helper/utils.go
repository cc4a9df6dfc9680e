package helper

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// placeholder that API explorers submit for an unset form field
const sessionPlaceholder = "string"

var (
	unsafePathChars  = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

// ErrInvalidSessionID is returned for session ids outside [A-Za-z0-9_-]{1,128}.
var ErrInvalidSessionID = errors.New("session_id must be 1-128 characters of letters, digits, '-' or '_'")

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// EnsureSessionID returns id, or a fresh UUID when id is empty or the
// placeholder value. Any other id must pass ValidSessionID.
func EnsureSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == sessionPlaceholder {
		return GenerateUUID()
	}
	if !ValidSessionID(id) {
		return "", ErrInvalidSessionID
	}
	return id, nil
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// SessionKey maps a session id onto a single path segment. Valid ids map to
// themselves; anything else is base64url encoded behind a '~', which no
// valid id contains, so distinct ids never share a key.
func SessionKey(id string) string {
	if ValidSessionID(id) {
		return id
	}
	return "~" + base64.RawURLEncoding.EncodeToString([]byte(id))
}

// SafeName strips directory parts and characters that do not belong in a
// single path segment.
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafePathChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return "_"
	}
	return name
}

// CreateFolder creates path and any missing parents.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Msg("Error pretty printing")
	}
	fmt.Println(string(b))
}
