package app

import (
	"errors"
	"flag"
)

type Config struct {
	Addr      string
	Capacity  int
	FailEvery int
	Verbose   bool
}

func NewConfig() *Config {
	return &Config{
		Addr:     ":3000",
		Capacity: 1000,
	}
}

func NewConfigFromCLI(name string, args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&c.Addr, "addr", c.Addr, "Listen address")
	fs.IntVar(&c.Capacity, "capacity", c.Capacity, "Number of most recent records kept in memory")
	fs.IntVar(&c.FailEvery, "fail-every", 0, "Fail every n-th POST with HTTP 500 (0 disables)")
	fs.BoolVar(&c.Verbose, "verbose", false, "Log every request")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.Addr == "" {
		err = errors.New("listen address is required")
	} else if c.Capacity < 1 {
		err = errors.New("capacity must be at least 1")
	} else if c.FailEvery < 0 {
		err = errors.New("fail-every must not be negative")
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}
	return c, nil
}
