// Command nemo-plugin-host is the child process internal/plugin execs
// per configured plugin (spec §4.J). It plays the role the source's
// forked, dlopen()'d child plays: load the plugin, call its init
// entry point, then loop reading 88-byte frames from stdin until a
// short or failed read ends the loop, at which point it calls the
// plugin's free entry point and exits 0.
//
// Go keeps loaded plugins resident for a process's entire lifetime
// (there is no dlclose equivalent), which is exactly why this lives in
// its own short-lived process rather than inside nres itself.
package main

import (
	"fmt"
	"io"
	"os"
	"plugin"

	"github.com/spf13/pflag"

	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

// The four required plugin ABI entry points. A Go plugin can only
// export capitalised identifiers, so they are looked up as NemoName,
// NemoInit, NemoEvent and NemoFree, standing in for the C ABI's
// nemo_name, nemo_init, nemo_evnt and nemo_free.
type nameFunc func() string
type initFunc func() error
type eventFunc func(k1, k2, k3, k4 uint64)
type freeFunc func()

func main() {
	path := pflag.String("plugin", "", "path to the plugin shared object (.so)")
	id := pflag.String("id", "", "correlation id assigned by the parent")
	pflag.Parse()

	if err := run(*path, *id, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "nemo-plugin-host[%s]: %v\n", *id, err)
		os.Exit(1)
	}
}

func run(path, id string, in io.Reader) error {
	if path == "" {
		return fmt.Errorf("missing -plugin")
	}

	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}

	name, err := lookupName(p)
	if err != nil {
		return err
	}
	init_, err := lookupInit(p)
	if err != nil {
		return err
	}
	event, err := lookupEvent(p)
	if err != nil {
		return err
	}
	free, err := lookupFree(p)
	if err != nil {
		return err
	}

	if err := init_(); err != nil {
		return fmt.Errorf("plugin %q init: %w", name(), err)
	}
	defer free()

	frame := make([]byte, wire.Size)
	for {
		n, err := io.ReadFull(in, frame)
		if n < wire.Size || err != nil {
			// A short or failed read ends the loop (spec §4.J child step 3).
			return nil
		}
		base := wire.Decode([wire.Size]byte(frame))
		event(base.Key, base.Key, base.Key, base.Key)
	}
}

func lookupName(p *plugin.Plugin) (nameFunc, error) {
	sym, err := p.Lookup("NemoName")
	if err != nil {
		return nil, fmt.Errorf("missing symbol NemoName: %w", err)
	}
	fn, ok := sym.(func() string)
	if !ok {
		return nil, fmt.Errorf("symbol NemoName has the wrong signature")
	}
	return fn, nil
}

func lookupInit(p *plugin.Plugin) (initFunc, error) {
	sym, err := p.Lookup("NemoInit")
	if err != nil {
		return nil, fmt.Errorf("missing symbol NemoInit: %w", err)
	}
	fn, ok := sym.(func() error)
	if !ok {
		return nil, fmt.Errorf("symbol NemoInit has the wrong signature")
	}
	return fn, nil
}

func lookupEvent(p *plugin.Plugin) (eventFunc, error) {
	sym, err := p.Lookup("NemoEvent")
	if err != nil {
		return nil, fmt.Errorf("missing symbol NemoEvent: %w", err)
	}
	fn, ok := sym.(func(uint64, uint64, uint64, uint64))
	if !ok {
		return nil, fmt.Errorf("symbol NemoEvent has the wrong signature")
	}
	return fn, nil
}

func lookupFree(p *plugin.Plugin) (freeFunc, error) {
	sym, err := p.Lookup("NemoFree")
	if err != nil {
		return nil, fmt.Errorf("missing symbol NemoFree: %w", err)
	}
	fn, ok := sym.(func())
	if !ok {
		return nil, fmt.Errorf("symbol NemoFree has the wrong signature")
	}
	return fn, nil
}
