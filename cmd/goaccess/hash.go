package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goAccess/password"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewHashCmd creates the hash subcommand.
func NewHashCmd() *cobra.Command {
	var verify string

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash or verify a password read from stdin",
		Long: `Read one password line from stdin and print its argon2id hash.

With --verify HASH the password is checked against HASH instead; the
command prints "match" or "mismatch" and whether the hash should be
upgraded to the current parameters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHash(cmd, verify)
		},
	}

	cmd.Flags().StringVar(&verify, "verify", "", "stored hash to verify the password against")

	return cmd
}

func runHash(cmd *cobra.Command, verify string) error {
	pw, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return oops.Code("HASHER_INIT_FAILED").Wrap(err)
	}

	if verify == "" {
		hash, err := hasher.Hash(pw)
		if err != nil {
			return oops.Code("HASH_FAILED").Wrap(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	}

	ok, err := hasher.Check(pw, verify)
	if err != nil {
		return oops.Code("HASH_MALFORMED").Wrap(err)
	}
	if ok {
		fmt.Fprintln(cmd.OutOrStdout(), "match")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "mismatch")
	}
	if hasher.NeedsUpgrade(verify) {
		fmt.Fprintln(cmd.OutOrStdout(), "needs upgrade")
	}
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INPUT_FAILED").Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("INPUT_INVALID").Errorf("no password on stdin")
	}
	return line, nil
}
