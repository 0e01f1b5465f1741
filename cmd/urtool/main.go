// Command urtool encodes and decodes Uniform Resources (URs), the
// fountain coded format for moving binary data such as PSBTs and
// seeds through sequences of QR codes.
//
// Usage:
//
//	urtool [--config FILE] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: usage error, or not enough parts to decode the message
//   - 2: the decoded message failed its checksum
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	exitIncomplete = 1
	exitChecksum   = 2
)

func main() {
	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	app.ExitErrHandler = exitErrHandler
	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "urtool",
		Usage:     "encode and decode Uniform Resources",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				EnvVars: []string{"URTOOL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			encodeCommand(),
			decodeCommand(),
			inspectCommand(),
			qrCommand(),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		if msg := exitCoder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "urtool: %v\n", err)
	os.Exit(1)
}
