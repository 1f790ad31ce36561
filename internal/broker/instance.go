package broker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// instanceIDFile holds the persistent instance ID under the data dir.
const instanceIDFile = "instance_id"

// LoadOrCreateInstanceID returns the stable identifier for this
// deployment, generating and persisting a UUIDv7 on first run. The ID
// is the primary HA device identifier: it survives renames of the
// device_name config field, so HA entity history is preserved across
// reconfigurations. A file holding anything but a UUID is treated as
// corrupt and replaced rather than handed to HA as an identifier.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceIDFile)

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if uuid.Validate(id) == nil {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}

	idStr := id.String()
	if err := os.WriteFile(path, []byte(idStr+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist instance ID to %s: %w", path, err)
	}
	return idStr, nil
}
