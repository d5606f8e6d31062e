package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAppID(t *testing.T) {
	for _, id := range []string{"termcanvas", "org.example.Overlay", "my overlay", "foot-1"} {
		assert.NoError(t, ValidateAppID(id), "app id %q", id)
	}
	for _, id := range []string{"", "  ", `a"b`, "a,b", "a]b", "a[b", "a;b", `a\b`, "a\nb", "a\x00b"} {
		assert.ErrorIs(t, ValidateAppID(id), ErrInvalidAppID, "app id %q", id)
	}
}
