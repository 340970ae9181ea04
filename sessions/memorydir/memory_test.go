package memorydir

import (
	"testing"

	"github.com/ggoodman/sessionmcp-go/sessions"
	"github.com/ggoodman/sessionmcp-go/sessions/directorytest"
)

func TestMemoryDirectory(t *testing.T) {
	directorytest.Run(t, func(t *testing.T) sessions.Directory {
		return New()
	})
}
