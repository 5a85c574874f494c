package commands

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/nholding/cycle-book/internal/httpapi"
)

// HashPassword handles the hash-password subcommand: it reads a password twice
// and prints a bcrypt hash suitable for AUTH_PASSWORD_HASH.
func HashPassword(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fromStdin := fs.Bool("stdin", false, "Read the password from the first line of stdin without prompting")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cycle-book hash-password [OPTIONS]\n\n")
		fmt.Fprintf(fs.Output(), "Prints a bcrypt hash for AUTH_PASSWORD_HASH / auth.password_hash.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	var password string
	if *fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	} else {
		f, ok := in.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			return errors.New("stdin is not a terminal, use -stdin")
		}
		var err error
		if password, err = readMasked(f, out, "Enter password:   "); err != nil {
			return err
		}
		confirm, err := readMasked(f, out, "Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return errors.New("passwords do not match")
		}
	}

	if password == "" {
		return errors.New("password cannot be empty")
	}

	hash, err := httpapi.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

// readMasked prompts on out and reads a line from the terminal without echo.
func readMasked(f *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	password, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
