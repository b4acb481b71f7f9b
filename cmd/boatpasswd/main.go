// Command boatpasswd prints a [User "..."] configuration stanza with a
// freshly salted password record, for an administrator to paste into
// boatd.conf. It never writes to the config file directly: configuration
// editing stays a human (or deployment tool) responsibility.
package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/boatd/boatd/internal/auth"
)

func main() {
	username := flag.String("user", "", "username this record is for (printed in the stanza header, which boatd uses as the username)")
	repository := flag.String("repository", "", "repository directory name for this user")
	versioning := flag.Bool("versioning", false, "set Versioning-Enabled for this user")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "boatpasswd: -user is required")
		os.Exit(2)
	}

	password, err := readPasswordTwice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "boatpasswd: %v\n", err)
		os.Exit(1)
	}
	defer auth.Zero(password)

	salt := make([]byte, auth.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		fmt.Fprintf(os.Stderr, "boatpasswd: generating salt: %v\n", err)
		os.Exit(1)
	}

	mac := hmac.New(sha256.New, salt)
	mac.Write(password)
	digestHex := hex.EncodeToString(mac.Sum(nil))
	field := hex.EncodeToString(salt) + digestHex

	fmt.Printf("[User %q]\n", *username)
	fmt.Printf("Password=%s\n", field)
	if *repository != "" {
		fmt.Printf("Repository=%s\n", *repository)
	}
	fmt.Printf("Versioning-Enabled=%t\n", *versioning)
}

// readPasswordTwice prompts for a password without echoing it and
// requires the user to confirm it, the conventional golang.org/x/term
// no-echo password prompt.
func readPasswordTwice() ([]byte, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		auth.Zero(first)
		return nil, fmt.Errorf("reading confirmation: %w", err)
	}
	defer auth.Zero(second)

	if !auth.ConstantTimeEqual(first, second) {
		auth.Zero(first)
		return nil, fmt.Errorf("passwords did not match")
	}
	return first, nil
}
