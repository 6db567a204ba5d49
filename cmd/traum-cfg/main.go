// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// traum-cfg is an interactive shell to edit Traumschreiber configurations.
//
// Usage: traum-cfg [OPTIONS] [FILE]
//
// Example:
//
//	$> traum-cfg ./cfg.hex
//	traum-cfg> set gain 3
//	traum-cfg> hex
//	e9 00 01 11 0f 80 00 00
//	traum-cfg> save
//	traum-cfg> quit
package main // import "github.com/go-lpc/traum/cmd/traum-cfg"

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/traum/ble"
	"github.com/go-lpc/traum/packet"
	"github.com/go-lpc/traum/server"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("traum-cfg: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Printf(`traum-cfg is an interactive shell to edit Traumschreiber configurations.

Usage: traum-cfg [OPTIONS] [FILE]

Commands:
%s
Options:
`, usage)
		flag.PrintDefaults()
	}

	addr := flag.String("addr", "", "BLE address of the device to read from and write to")

	flag.Parse()

	sh := newShell(os.Stdout)
	if *addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		link, err := ble.Dial(ctx, *addr, nil)
		cancel()
		if err != nil {
			log.Fatalf("could not connect to device: %+v", err)
		}
		defer link.Close()
		sh.dev = link
		err = sh.exec("read")
		if err != nil {
			log.Printf("could not read device config: %+v", err)
		}
	}
	if flag.NArg() > 0 {
		err := sh.exec("load " + flag.Arg(0))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("could not load config: %+v", err)
		}
		sh.fname = flag.Arg(0)
	}

	err := sh.run()
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

const usage = `  show               display the current configuration
  hex                display the encoded configuration
  set FIELD VALUE    set a configuration field
  reset              restore the default configuration
  load FILE          load a configuration file
  save [FILE]        save the configuration
  read               read the configuration of the device
  write              send the configuration to the device
  help               display this help message
  quit               leave the shell
`

var (
	errQuit     = errors.New("quit")
	errNoDevice = errors.New("no connected device")
)

type device interface {
	ReadConfig() (packet.Config, error)
	WriteConfig(cfg packet.Config) error
}

type shell struct {
	w     io.Writer
	cfg   packet.Config
	fname string
	dev   device
}

func newShell(w io.Writer) *shell {
	return &shell{w: w, cfg: packet.DefaultConfig()}
}

func (sh *shell) run() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(sh.complete)

	for {
		cmd, err := line.Prompt("traum-cfg> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(sh.w)
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		line.AppendHistory(cmd)

		err = sh.exec(cmd)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(sh.w, "error: %+v\n", err)
		}
	}
}

func (sh *shell) complete(line string) []string {
	var out []string
	toks := strings.Fields(line)
	switch {
	case len(toks) == 2 && toks[0] == "set" && !strings.HasSuffix(line, " "):
		for _, name := range fieldNames() {
			if strings.HasPrefix(name, toks[1]) {
				out = append(out, "set "+name+" ")
			}
		}
	case len(toks) <= 1 && !strings.HasSuffix(line, " "):
		for _, cmd := range []string{"help", "hex", "load", "quit", "read", "reset", "save", "set", "show", "write"} {
			if strings.HasPrefix(cmd, line) {
				out = append(out, cmd)
			}
		}
	}
	return out
}

func (sh *shell) exec(cmd string) error {
	toks := strings.Fields(cmd)
	if len(toks) == 0 {
		return nil
	}
	args := toks[1:]

	switch toks[0] {
	case "show":
		fmt.Fprint(sh.w, sh.cfg.String())
	case "hex":
		fmt.Fprintln(sh.w, encode(sh.cfg))
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("usage: set FIELD VALUE")
		}
		return sh.set(args[0], args[1])
	case "reset":
		battery := sh.cfg.Battery
		sh.cfg = packet.DefaultConfig()
		sh.cfg.Battery = battery
	case "load":
		if len(args) != 1 {
			return fmt.Errorf("usage: load FILE")
		}
		cfg, err := server.ReadConfig(args[0])
		if err != nil {
			return err
		}
		sh.cfg = cfg
		sh.fname = args[0]
	case "save":
		fname := sh.fname
		if len(args) == 1 {
			fname = args[0]
		}
		if fname == "" {
			return fmt.Errorf("usage: save FILE")
		}
		err := sh.cfg.Validate()
		if err != nil {
			return err
		}
		err = os.WriteFile(fname, []byte(encode(sh.cfg)+"\n"), 0644)
		if err != nil {
			return fmt.Errorf("could not save config: %w", err)
		}
		sh.fname = fname
	case "read":
		if sh.dev == nil {
			return errNoDevice
		}
		cfg, err := sh.dev.ReadConfig()
		if err != nil {
			return err
		}
		sh.cfg = cfg
		fmt.Fprintf(sh.w, "battery: %d\n", cfg.Battery)
	case "write":
		if sh.dev == nil {
			return errNoDevice
		}
		err := sh.cfg.Validate()
		if err != nil {
			return err
		}
		return sh.dev.WriteConfig(sh.cfg)
	case "help":
		fmt.Fprint(sh.w, usage)
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", toks[0])
	}
	return nil
}

func (sh *shell) set(name, value string) error {
	fields := sh.fields()
	ptr, ok := fields[name]
	if !ok {
		return fmt.Errorf("unknown field %q (fields: %s)", name, strings.Join(fieldNames(), ", "))
	}

	switch ptr := ptr.(type) {
	case *bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", name, value, err)
		}
		*ptr = v
	case *uint8:
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", name, value, err)
		}
		old := *ptr
		*ptr = uint8(v)
		err = sh.cfg.Validate()
		if err != nil {
			*ptr = old
			return err
		}
	}
	return nil
}

func (sh *shell) fields() map[string]interface{} {
	return map[string]interface{}{
		"gain":          &sh.cfg.Gain,
		"bits":          &sh.cfg.Bits,
		"running-avg":   &sh.cfg.RunningAverage,
		"one-char":      &sh.cfg.SendOnOneChar,
		"generate-data": &sh.cfg.GenerateData,
		"rate":          &sh.cfg.TransmissionRate,
		"o1-highpass":   &sh.cfg.O1Highpass,
		"iir-highpass":  &sh.cfg.IIRHighpass,
		"lowpass":       &sh.cfg.Lowpass,
		"filter-50hz":   &sh.cfg.Filter50Hz,
		"bitshift-min":  &sh.cfg.BitshiftMin,
		"bitshift-max":  &sh.cfg.BitshiftMax,
		"safety-factor": &sh.cfg.SafetyFactor,
	}
}

func fieldNames() []string {
	var sh shell
	names := make([]string, 0, 16)
	for name := range sh.fields() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func encode(cfg packet.Config) string {
	raw, _ := cfg.MarshalBinary()
	words := make([]string, len(raw))
	for i := range raw {
		words[i] = hex.EncodeToString(raw[i : i+1])
	}
	return strings.Join(words, " ")
}
