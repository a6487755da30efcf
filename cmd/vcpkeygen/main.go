package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vcp-chain/auditlog/pkg/signer"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vcpkeygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outputDir := fs.String("output-dir", "./keys", "directory to save keys")
	fs.StringVar(outputDir, "o", "./keys", "directory to save keys (shorthand for -output-dir)")
	verify := fs.Bool("verify", false, "verify existing keys instead of generating new ones")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	if *verify {
		return runVerify(*outputDir, stdout, stderr)
	}
	return runGenerate(*outputDir, stdout, stderr)
}

func keyPaths(dir string) (privPath, pubPath string) {
	return filepath.Join(dir, "ed25519_private.pem"), filepath.Join(dir, "ed25519_public.pem")
}

func runGenerate(dir string, stdout, stderr io.Writer) int {
	privPath, pubPath := keyPaths(dir)
	if _, err := os.Stat(privPath); err == nil {
		fmt.Fprintf(stdout, "Keys already exist at %s, refusing to overwrite\n", dir)
		return 1
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "create key directory: %v\n", err)
		return 1
	}

	sgn, err := signer.GenerateEd25519()
	if err != nil {
		fmt.Fprintf(stderr, "generate keypair: %v\n", err)
		return 1
	}
	if err := sgn.Save(privPath, pubPath); err != nil {
		fmt.Fprintf(stderr, "save keypair: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Keys generated successfully")
	fmt.Fprintf(stdout, "  Private key: %s\n", privPath)
	fmt.Fprintf(stdout, "  Public key:  %s\n", pubPath)
	fmt.Fprintf(stdout, "  Public key (hex): %x\n", sgn.PublicKeyBytes())
	fmt.Fprintln(stdout, "Keep the private key secure: do not commit it, restrict its permissions, back it up separately.")
	return 0
}

func runVerify(dir string, stdout, stderr io.Writer) int {
	privPath, pubPath := keyPaths(dir)
	sgn, err := signer.LoadEd25519(privPath, pubPath)
	if err != nil {
		fmt.Fprintf(stdout, "Key verification failed: %v\n", err)
		return 1
	}

	testMsg := []byte("VCP key verification test")
	sig, err := sgn.Sign(testMsg)
	if err != nil || !sgn.Verify(testMsg, sig) {
		fmt.Fprintln(stdout, "Key verification failed: sign/verify roundtrip did not match")
		return 1
	}

	fmt.Fprintln(stdout, "Keys verified successfully")
	fmt.Fprintf(stdout, "  Private key: %s\n", privPath)
	fmt.Fprintf(stdout, "  Public key:  %s\n", pubPath)
	fmt.Fprintf(stdout, "  Public key (hex): %x\n", sgn.PublicKeyBytes())
	return 0
}
