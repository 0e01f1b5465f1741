package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"seedhammer.com/bcur/bc/fountain"
	"seedhammer.com/bcur/bc/ur"
)

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode URs from arguments or standard input",
		ArgsUsage: "[ur ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state", Usage: "file that keeps received parts between runs"},
			&cli.StringFlag{Name: "out", Usage: "write the raw message to a file instead of hex to standard out"},
			&cli.BoolFlag{Name: "cbor", Usage: "output the CBOR payload, also for the bytes type"},
		},
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		inputs, err = readLines(c.App.Reader)
		if err != nil {
			return err
		}
	}
	statePath := e.cfg.Decode.State
	st := &decodeState{Version: stateVersion}
	if statePath != "" {
		st, err = loadState(statePath)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}
	d := &ur.Decoder{Logger: e.log}
	for _, part := range st.Parts {
		if err := d.Add(part); err != nil {
			e.log.Debug("discarding saved part", zap.Error(err))
		}
	}
	for _, part := range inputs {
		if d.IsComplete() {
			break
		}
		if err := d.Add(part); err != nil {
			e.log.Warn("discarding part", zap.String("ur", abbreviate(part)), zap.Error(err))
			continue
		}
		st.Parts = append(st.Parts, part)
	}
	typ, msg, err := d.Result()
	switch {
	case errors.Is(err, fountain.ErrInvalidChecksum):
		if err := removeState(statePath); err != nil {
			return err
		}
		return cli.Exit(fmt.Sprintf("decode: %v", err), exitChecksum)
	case err != nil:
		return err
	case msg == nil:
		if statePath != "" {
			if err := st.save(statePath); err != nil {
				return fmt.Errorf("saving state: %w", err)
			}
		}
		f := d.Fountain()
		fmt.Fprintf(c.App.ErrWriter, "decode: %.0f%% complete, %d of %d fragments\n",
			100*d.Progress(), len(f.SolvedIndexes()), f.ExpectedPartCount())
		return cli.Exit("", exitIncomplete)
	}
	if err := removeState(statePath); err != nil {
		return err
	}
	e.log.Info("decoded message", zap.String("type", typ), zap.Int("len", len(msg)),
		zap.Int("parts", d.Fountain().ProcessedParts()))
	if typ == "bytes" && !c.Bool("cbor") {
		v, err := e.reg.Parse(typ, msg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		msg = v.([]byte)
	}
	if out := c.String("out"); out != "" {
		return os.WriteFile(out, msg, 0o600)
	}
	_, err = fmt.Fprintln(c.App.Writer, hex.EncodeToString(msg))
	return err
}

func removeState(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// abbreviate shortens a UR for logging.
func abbreviate(s string) string {
	const maxLen = 40
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
