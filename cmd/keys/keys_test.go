package keys

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"signalexecutor/src/security"
)

const testKey = "Pjk+k4hske5KkKtbaKSVDOgpllRl+0EI6oCAdx88XqI="

func TestEncryptArgument(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", testKey)

	var out bytes.Buffer
	require.NoError(t, Encrypt("api-key", strings.NewReader(""), &out))

	plain, err := security.DecryptString(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "api-key", plain)
}

func TestEncryptFromStdin(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", testKey)
	t.Setenv("KEYS_FROM_STDIN", "true")

	var out bytes.Buffer
	require.NoError(t, Encrypt("ignored", strings.NewReader("  from-stdin \n"), &out))

	plain, err := security.DecryptString(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "from-stdin", plain)

	require.Error(t, Encrypt("", strings.NewReader(""), &out))
}
