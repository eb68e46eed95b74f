// Command vhcistat prints the currently imported VHCI devices, in the same
// style as usbip's own "port" listing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	vhci "github.com/usbip-go/vhci"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vhcistat:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("vhcistat", pflag.ExitOnError)
	verbose := fs.BoolP("verbose", "v", false, "log driver activity to stderr")
	v := viper.New()
	vhci.BindFlags(fs, v)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := vhci.LoadConfig(v)
	if err != nil {
		return err
	}

	opts := []vhci.Option{vhci.WithConfig(cfg)}
	if *verbose {
		opts = append(opts, vhci.WithLogger(vhci.NewLogfmtLogger(os.Stderr)))
	}

	d, err := vhci.Open(opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	idevs, err := d.ImportedDevices()
	if err != nil {
		return err
	}

	names := vhci.NoNames{}
	any := false
	for _, idev := range idevs {
		line := vhci.Display(idev, names)
		if line == "" {
			continue
		}
		any = true
		fmt.Println(line)
	}
	if !any {
		fmt.Println("no devices attached")
	}
	return nil
}
