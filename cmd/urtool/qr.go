package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/kortschak/qr"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

func qrCommand() *cli.Command {
	flags := append(encoderFlags(),
		&cli.StringFlag{Name: "dir", Usage: "output directory", Value: "."},
		&cli.StringFlag{Name: "level", Usage: "error correction level (L, M, Q, H)"},
		&cli.IntFlag{Name: "scale", Usage: "pixels per module"},
	)
	return &cli.Command{
		Name:   "qr",
		Usage:  "Encode standard input as a sequence of QR code images",
		Flags:  flags,
		Action: qrAction,
	}
}

func qrAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	level, err := e.cfg.QR.level()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	enc, err := e.encoder(c)
	if err != nil {
		return err
	}
	dir := c.String("dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return e.emit(c, enc, func(seqNum uint32, part string) error {
		// Upper case URs fit the denser alphanumeric QR mode.
		code, err := qr.Encode(strings.ToUpper(part), level)
		if err != nil {
			return fmt.Errorf("qr: part %d: %w", seqNum, err)
		}
		name := filepath.Join(dir, fmt.Sprintf("part-%d.png", seqNum))
		if err := writePNG(name, qrImage(code, e.cfg.QR.Scale)); err != nil {
			return err
		}
		e.log.Debug("wrote qr code", zap.String("file", name), zap.Int("modules", code.Size))
		return nil
	})
}

// quietZone is the width in modules of the white border
// around a QR code.
const quietZone = 4

// qrImage renders code with scale pixels per module.
func qrImage(code *qr.Code, scale int) *image.Gray {
	dim := code.Size + 2*quietZone
	src := image.NewGray(image.Rect(0, 0, dim, dim))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	for y := 0; y < code.Size; y++ {
		for x := 0; x < code.Size; x++ {
			if code.Black(x, y) {
				src.SetGray(x+quietZone, y+quietZone, color.Gray{})
			}
		}
	}
	dst := image.NewGray(image.Rect(0, 0, dim*scale, dim*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func writePNG(name string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
