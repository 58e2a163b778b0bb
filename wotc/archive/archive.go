// Package archive keeps a byte-for-byte copy of every payload transmitted
// to a state agency. Archived files are the audit trail's raw evidence and
// are never read back by the orchestrator itself.
package archive

import (
	"context"
	"fmt"
	"path"
)

// Saver persists one transmitted payload and returns where it landed.
type Saver interface {
	Save(ctx context.Context, employerID int64, stateCode, filename string, data []byte) (location string, err error)
}

// objectKey is the shared layout for both backends:
// {employerID}/{stateCode}/{filename}.
func objectKey(employerID int64, stateCode, filename string) string {
	return path.Join(fmt.Sprintf("%d", employerID), stateCode, filename)
}
