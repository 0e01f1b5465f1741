package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:   "encode",
		Usage:  "Encode standard input as URs, one per line",
		Flags:  encoderFlags(),
		Action: encodeAction,
	}
}

func encodeAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	enc, err := e.encoder(c)
	if err != nil {
		return err
	}
	return e.emit(c, enc, func(_ uint32, part string) error {
		_, err := fmt.Fprintln(c.App.Writer, part)
		return err
	})
}
