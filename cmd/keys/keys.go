package keys

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"signalexecutor/src/security"
)

// Encrypt writes the ciphertext of value to out, ready to be used as
// BINANCE_API_KEY or BINANCE_API_SECRET with BINANCE_KEYS_ENCRYPTED=true.
// An empty value is read from in.
func Encrypt(value string, in io.Reader, out io.Writer) error {
	if value == "" || GetConfig().Stdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		value = strings.TrimSpace(line)
	}
	if value == "" {
		return errors.New("nothing to encrypt")
	}

	encrypted, err := security.EncryptString(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, encrypted)
	return err
}
